package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinal-widget/internal/auth"
	"sentinal-widget/internal/domain"
	"sentinal-widget/internal/events"
	"sentinal-widget/internal/httpapi"
	"sentinal-widget/internal/presence"
	"sentinal-widget/internal/store"
	"sentinal-widget/internal/transport"
	"sentinal-widget/internal/uploader"
	widget_errors "sentinal-widget/pkg/errors"
	"sentinal-widget/pkg/logger"
)

// Transport is the realtime channel the session coordinates over.
type Transport interface {
	Connect(conversationID string) error
	Send(ev events.Outbound) error
	State() transport.State
	OnEvent(h func(events.Inbound))
	OnStateChange(h func(transport.State))
	Close() error
}

// Uploader resolves local files into attachment references.
type Uploader interface {
	Upload(ctx context.Context, conversationID string, files []uploader.LocalFile) []uploader.Result
}

// API is the request/response side of the server contract.
type API interface {
	SendMessage(ctx context.Context, req httpapi.ChatRequest) (httpapi.ChatResponse, error)
	React(ctx context.Context, messageID, emoji string) error
	EditMessage(ctx context.Context, messageID, content string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Config carries per-session parameters.
type Config struct {
	ConversationID string
	SessionToken   string
	TypingIdle     time.Duration
	TypingExpiry   time.Duration
}

// Session owns the message timeline for one conversation and is built
// and torn down with the conversation view. It binds transport events
// to store mutations, runs the optimistic send/reconcile protocol, and
// falls back to the request/response API while the channel is down.
type Session struct {
	cfg       Config
	store     *store.Store
	transport Transport
	uploader  Uploader
	api       API
	signaler  *presence.Signaler
	log       *logger.Logger
	identity  string

	onError  func(error)
	onUpdate func()

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config, tr Transport, up Uploader, api API, log *logger.Logger) *Session {
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = 3 * time.Second
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = 10 * time.Second
	}

	s := &Session{
		cfg:       cfg,
		store:     store.New(),
		transport: tr,
		uploader:  up,
		api:       api,
		log:       log,
	}
	if tok, err := auth.Inspect(cfg.SessionToken); err == nil {
		s.identity = tok.Subject
	}

	// Typing is best effort over the live channel only; there is no
	// fallback for presence.
	s.signaler = presence.NewSignaler(cfg.TypingIdle, cfg.TypingExpiry,
		func() {
			if err := s.transport.Send(events.NewTypingStart(cfg.ConversationID)); err != nil {
				s.log.Debugf("typing_start not sent: %v", err)
			}
		},
		func() {
			if err := s.transport.Send(events.NewTypingStop(cfg.ConversationID)); err != nil {
				s.log.Debugf("typing_stop not sent: %v", err)
			}
		})

	tr.OnEvent(s.handleEvent)
	tr.OnStateChange(s.handleState)
	return s
}

// OnError registers the callback for recoverable errors pushed by the
// server (error frames). Send failures are returned from SendMessage
// directly, not duplicated here.
func (s *Session) OnError(h func(error)) {
	s.onError = h
}

// OnUpdate registers a callback invoked after every timeline mutation,
// for UI binding.
func (s *Session) OnUpdate(h func()) {
	s.onUpdate = h
}

// Connect opens the realtime channel. A token that is already expired
// is rejected before any dial.
func (s *Session) Connect() error {
	if s.cfg.SessionToken != "" {
		if tok, err := auth.Inspect(s.cfg.SessionToken); err == nil {
			if err := tok.Validate(time.Now()); err != nil {
				return err
			}
		}
	}
	return s.transport.Connect(s.cfg.ConversationID)
}

// Close tears down the transport and all timers. The session is not
// reusable afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.signaler.Close()
	err := s.transport.Close()
	s.wg.Wait()
	return err
}

// SendOption tweaks one send.
type SendOption func(*sendOptions)

type sendOptions struct {
	replyToID string
}

// WithReplyTo attaches a back-reference to an earlier message.
func WithReplyTo(messageID string) SendOption {
	return func(o *sendOptions) {
		o.replyToID = messageID
	}
}

// SendMessage runs the full send pipeline: optimistic insert, out-of-band
// attachment upload, realtime send with request/response fallback. The
// returned id is the local identifier of the optimistic entry; it may be
// promoted later by a status_update. Whatever happens, the entry never
// stays in sending status.
func (s *Session) SendMessage(ctx context.Context, content string, files []uploader.LocalFile, opts ...SendOption) (string, error) {
	if strings.TrimSpace(content) == "" && len(files) == 0 {
		return "", widget_errors.ErrEmptyMessage
	}
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	// Submitting counts as going idle.
	s.signaler.Flush()

	id := uuid.NewString()
	msg := domain.Message{
		ID:             id,
		ConversationID: s.cfg.ConversationID,
		Content:        content,
		Role:           domain.RoleUser,
		Status:         domain.StatusSending,
		CreatedAt:      time.Now(),
	}
	if o.replyToID != "" {
		ref := &domain.ReplyRef{MessageID: o.replyToID}
		if prev, ok := s.store.Get(o.replyToID); ok {
			ref.Content = prev.Content
		}
		msg.ReplyTo = ref
	}
	if err := s.store.Append(msg); err != nil {
		return "", err
	}
	s.changed()

	var attachments []domain.Attachment
	if len(files) > 0 {
		results := s.uploader.Upload(ctx, s.cfg.ConversationID, files)
		var failures []error
		for _, r := range results {
			if r.Err != nil {
				failures = append(failures, r.Err)
			}
		}
		if len(failures) > 0 {
			// All or nothing: a message never goes out with part of its
			// attachments missing.
			s.setStatus(id, domain.StatusFailed)
			return id, errors.Join(failures...)
		}
		for _, r := range results {
			attachments = append(attachments, *r.Attachment)
		}
		atts := attachments
		if err := s.store.Update(id, store.Update{Attachments: &atts}); err != nil {
			s.log.Warnf("attachment record: %v", err)
		}
	}

	if s.transport.State() == transport.StateConnected {
		ev := events.NewChatMessage(s.cfg.ConversationID, id, content, attachments, o.replyToID)
		err := s.transport.Send(ev)
		switch {
		case err == nil:
			s.setStatus(id, domain.StatusSent)
			return id, nil
		case errors.Is(err, widget_errors.ErrNotConnected):
			// Lost the race to a disconnect; take the fallback path.
		default:
			s.setStatus(id, domain.StatusFailed)
			return id, err
		}
	}

	resp, err := s.api.SendMessage(ctx, httpapi.ChatRequest{
		Message:        content,
		ConversationID: s.cfg.ConversationID,
		Attachments:    attachments,
		ReplyToID:      o.replyToID,
	})
	if err != nil {
		s.setStatus(id, domain.StatusFailed)
		return id, err
	}

	s.setStatus(id, domain.StatusDelivered)
	s.appendReply(resp)
	return id, nil
}

func (s *Session) appendReply(resp httpapi.ChatResponse) {
	replyID := resp.MessageID
	if replyID == "" {
		replyID = uuid.NewString()
	}
	err := s.store.Append(domain.Message{
		ID:             replyID,
		ConversationID: s.cfg.ConversationID,
		Content:        resp.Response,
		Role:           domain.RoleAssistant,
		Status:         domain.StatusDelivered,
		CreatedAt:      time.Now(),
		Metadata:       resp.Metadata,
	})
	if err != nil {
		s.log.Debugf("assistant reply already recorded: %v", err)
		return
	}
	s.changed()
}

// TypingActivity records one unit of local input.
func (s *Session) TypingActivity() {
	s.signaler.Activity()
}

// AddReaction applies the reaction locally first and confirms with the
// server in the background. A lost confirmation costs one cosmetic
// reaction, so this side is fire-and-forget.
func (s *Session) AddReaction(ctx context.Context, messageID, emoji string) error {
	msg, ok := s.store.Get(messageID)
	if !ok {
		return widget_errors.ErrNotFound
	}

	reactions := mergeReaction(msg.Reactions, emoji, s.identity)
	if err := s.store.Update(messageID, store.Update{Reactions: &reactions}); err != nil {
		return err
	}
	s.changed()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.api.React(ctx, messageID, emoji); err != nil {
			s.log.Warnf("reaction not confirmed for %s: %v", messageID, err)
		}
	}()
	return nil
}

// DeleteMessage hides a message. Unlike reactions this waits for the
// server: a delete that only happened locally would resurface content
// the user meant to remove.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	if _, ok := s.store.Get(messageID); !ok {
		return widget_errors.ErrNotFound
	}
	if err := s.api.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	if err := s.store.Update(messageID, store.Update{DeletedAt: widget_errors.NowPtr()}); err != nil {
		return err
	}
	s.changed()
	return nil
}

// EditMessage replaces content after server confirmation.
func (s *Session) EditMessage(ctx context.Context, messageID, content string) error {
	if strings.TrimSpace(content) == "" {
		return widget_errors.ErrEmptyMessage
	}
	if _, ok := s.store.Get(messageID); !ok {
		return widget_errors.ErrNotFound
	}
	if err := s.api.EditMessage(ctx, messageID, content); err != nil {
		return err
	}
	if err := s.store.Update(messageID, store.Update{Content: &content, EditedAt: widget_errors.NowPtr()}); err != nil {
		return err
	}
	s.changed()
	return nil
}

// Messages returns a snapshot of the timeline. Deleted entries are
// included; renderers hide them.
func (s *Session) Messages() []domain.Message {
	return s.store.All()
}

// Typists returns remote identities currently typing.
func (s *Session) Typists() []string {
	return s.signaler.Typists()
}

// ConnectionState exposes the transport state for the UI indicator.
func (s *Session) ConnectionState() transport.State {
	return s.transport.State()
}

// Reset empties the timeline for a conversation restart.
func (s *Session) Reset() {
	s.store.Clear()
	s.changed()
}

// handleEvent is the single dispatch point for inbound protocol events.
func (s *Session) handleEvent(ev events.Inbound) {
	switch e := ev.(type) {
	case *events.UserMessage:
		s.appendInbound(domain.Message{
			ID:             e.MessageID,
			ConversationID: s.cfg.ConversationID,
			Content:        e.Content,
			Role:           domain.RoleUser,
			Status:         domain.StatusDelivered,
			Attachments:    e.Attachments,
			CreatedAt:      e.CreatedAt,
		})
	case *events.AIResponse:
		s.appendInbound(domain.Message{
			ID:             e.MessageID,
			ConversationID: s.cfg.ConversationID,
			Content:        e.Content,
			Role:           domain.RoleAssistant,
			Status:         domain.StatusDelivered,
			CreatedAt:      e.CreatedAt,
			Metadata:       e.Metadata,
		})
	case *events.StatusUpdate:
		s.applyStatusUpdate(e)
	case *events.ReactionUpdate:
		// Unknown ids are tolerated; the timeline may have been reset.
		reactions := e.Reactions
		if err := s.store.Update(e.MessageID, store.Update{Reactions: &reactions}); err == nil {
			s.changed()
		}
	case *events.TypingStart:
		s.signaler.RemoteStarted(e.UserID)
	case *events.TypingStop:
		s.signaler.RemoteStopped(e.UserID)
	case *events.ConnectionEstablished:
		s.log.Infof("realtime channel established: %s", e.ConnectionID)
	case *events.ServerError:
		s.log.Warnf("server error: %s", e.Message)
		if s.onError != nil {
			s.onError(errors.New(e.Message))
		}
	}
}

func (s *Session) appendInbound(msg domain.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := s.store.Append(msg); err != nil {
		s.log.Debugf("inbound message %s already present", msg.ID)
		return
	}
	s.changed()
}

func (s *Session) applyStatusUpdate(e *events.StatusUpdate) {
	id := e.MessageID
	if e.ClientMessageID != "" {
		if _, ok := s.store.Get(e.ClientMessageID); ok {
			if e.MessageID != "" && e.MessageID != e.ClientMessageID {
				newID := e.MessageID
				if err := s.store.Update(e.ClientMessageID, store.Update{NewID: &newID}); err != nil {
					s.log.Warnf("id promotion for %s: %v", e.ClientMessageID, err)
					id = e.ClientMessageID
				}
			} else {
				id = e.ClientMessageID
			}
		}
	}
	s.setStatus(id, e.Status)
}

// setStatus applies a delivery-status step, ignoring repeats, unknown
// ids and regressions so reconcile stays idempotent.
func (s *Session) setStatus(id string, to domain.DeliveryStatus) {
	msg, ok := s.store.Get(id)
	if !ok {
		return
	}
	if msg.Status == to || !msg.Status.CanTransition(to) {
		return
	}
	status := to
	if err := s.store.Update(id, store.Update{Status: &status}); err != nil {
		return
	}
	s.changed()
}

func (s *Session) handleState(st transport.State) {
	// Nothing to replay on reconnect: sends made while down went through
	// the fallback, so the session just resumes listening.
	s.log.Infof("connection state: %s", st)
	s.changed()
}

func (s *Session) changed() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

func mergeReaction(reactions []domain.Reaction, emoji, userID string) []domain.Reaction {
	out := make([]domain.Reaction, len(reactions))
	copy(out, reactions)
	for i, r := range out {
		if r.Emoji != emoji {
			continue
		}
		for _, uid := range r.UserIDs {
			if uid != "" && uid == userID {
				return out
			}
		}
		out[i].Count++
		if userID != "" {
			out[i].UserIDs = append(append([]string(nil), r.UserIDs...), userID)
		}
		return out
	}
	next := domain.Reaction{Emoji: emoji, Count: 1}
	if userID != "" {
		next.UserIDs = []string{userID}
	}
	return append(out, next)
}
