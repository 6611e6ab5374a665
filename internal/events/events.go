package events

import (
	"encoding/json"
	"fmt"
	"time"

	"sentinal-widget/internal/domain"
)

// Outbound is the closed set of frames the widget may write to the
// realtime channel. The unexported marker keeps the union sealed.
type Outbound interface {
	outboundEvent()
}

// ChatMessage carries one user send over the realtime channel.
type ChatMessage struct {
	Type            string              `json:"type"`
	ClientMessageID string              `json:"client_message_id"`
	ConversationID  string              `json:"conversation_id"`
	Content         string              `json:"content"`
	Attachments     []domain.Attachment `json:"attachments,omitempty"`
	ReplyToID       string              `json:"reply_to_id,omitempty"`
}

func NewChatMessage(conversationID, clientMessageID, content string, attachments []domain.Attachment, replyToID string) ChatMessage {
	return ChatMessage{
		Type:            TypeChatMessage,
		ClientMessageID: clientMessageID,
		ConversationID:  conversationID,
		Content:         content,
		Attachments:     attachments,
		ReplyToID:       replyToID,
	}
}

// TypingSignal is an outbound typing_start or typing_stop edge.
type TypingSignal struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

func NewTypingStart(conversationID string) TypingSignal {
	return TypingSignal{Type: TypeTypingStart, ConversationID: conversationID}
}

func NewTypingStop(conversationID string) TypingSignal {
	return TypingSignal{Type: TypeTypingStop, ConversationID: conversationID}
}

// Ping is the keepalive frame written on a fixed interval while connected.
type Ping struct {
	Type string `json:"type"`
}

func NewPing() Ping {
	return Ping{Type: TypePing}
}

func (ChatMessage) outboundEvent()  {}
func (TypingSignal) outboundEvent() {}
func (Ping) outboundEvent()         {}

// Inbound is the closed set of decoded server frames. Consumers dispatch
// with a single type switch, so adding a frame kind is a compile-time
// visible change.
type Inbound interface {
	inboundEvent()
}

// UserMessage is a message originated by another participant.
type UserMessage struct {
	MessageID      string              `json:"message_id"`
	ConversationID string              `json:"conversation_id"`
	SenderID       string              `json:"sender_id"`
	Content        string              `json:"content"`
	Attachments    []domain.Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// AIResponse is an assistant reply generated server-side.
type AIResponse struct {
	MessageID      string                 `json:"message_id"`
	ConversationID string                 `json:"conversation_id"`
	Content        string                 `json:"message"`
	CreatedAt      time.Time              `json:"created_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// TypingStart reports a remote identity starting to type.
type TypingStart struct {
	UserID string `json:"user_id"`
}

// TypingStop reports a remote identity going idle.
type TypingStop struct {
	UserID string `json:"user_id"`
}

// StatusUpdate moves one message to a new delivery status. When the
// server assigns its own identifier to a client-originated message, the
// first update carries both ids and the client one is promoted.
type StatusUpdate struct {
	MessageID       string                `json:"message_id"`
	ClientMessageID string                `json:"client_message_id,omitempty"`
	Status          domain.DeliveryStatus `json:"status"`
}

// ReactionUpdate replaces the full reaction list of one message.
type ReactionUpdate struct {
	MessageID string            `json:"message_id"`
	Reactions []domain.Reaction `json:"reactions"`
}

// ConnectionEstablished acknowledges a successful channel handshake.
type ConnectionEstablished struct {
	ConnectionID string `json:"connection_id"`
}

// ServerError is a recoverable error pushed by the server. It does not
// tear down the connection.
type ServerError struct {
	Message string `json:"message"`
}

func (*UserMessage) inboundEvent()           {}
func (*AIResponse) inboundEvent()            {}
func (*TypingStart) inboundEvent()           {}
func (*TypingStop) inboundEvent()            {}
func (*StatusUpdate) inboundEvent()          {}
func (*ReactionUpdate) inboundEvent()        {}
func (*ConnectionEstablished) inboundEvent() {}
func (*ServerError) inboundEvent()           {}

// Decode parses one raw inbound frame into its typed event. Unknown or
// malformed frames return an error; callers log and drop them.
func Decode(data []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var (
		ev  Inbound
		err error
	)
	switch head.Type {
	case TypeUserMessage:
		e := &UserMessage{}
		err = json.Unmarshal(data, e)
		ev = e
	case TypeAIResponse:
		e := &AIResponse{}
		err = json.Unmarshal(data, e)
		ev = e
	case TypeTypingStart:
		e := &TypingStart{}
		err = json.Unmarshal(data, e)
		ev = e
	case TypeTypingStop:
		e := &TypingStop{}
		err = json.Unmarshal(data, e)
		ev = e
	case TypeStatusUpdate:
		e := &StatusUpdate{}
		err = json.Unmarshal(data, e)
		ev = e
	case TypeReactionUpdate:
		e := &ReactionUpdate{}
		err = json.Unmarshal(data, e)
		ev = e
	case TypeConnectionEstablished:
		e := &ConnectionEstablished{}
		err = json.Unmarshal(data, e)
		ev = e
	case TypeError:
		e := &ServerError{}
		err = json.Unmarshal(data, e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
	}
	return ev, nil
}
