package transport

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sentinal-widget/internal/events"
	widget_errors "sentinal-widget/pkg/errors"
	"sentinal-widget/pkg/logger"
)

// State is the connection lifecycle state of the realtime channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config carries the connection parameters for one Manager.
type Config struct {
	URL               string
	Token             string
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	KeepaliveInterval time.Duration
	WriteTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReconnectMinDelay <= 0 {
		c.ReconnectMinDelay = time.Second
	}
	if c.ReconnectMaxDelay < c.ReconnectMinDelay {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Manager owns the lifecycle of one realtime connection: connect,
// keepalive, reconnect with capped exponential backoff plus jitter, and
// teardown. It decodes inbound frames into typed events and knows
// nothing about message semantics.
//
// The reference widget reconnected on a fixed delay forever; the capped
// backoff here keeps the same always-eventually-retries contract while
// spreading out reconnect storms.
type Manager struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *logger.Logger

	handler      func(events.Inbound)
	stateHandler func(State)

	mu             sync.Mutex
	writeMu        sync.Mutex
	state          State
	conn           *websocket.Conn
	conversationID string
	attempt        int
	reconnectTimer *time.Timer
	closed         bool
	wg             sync.WaitGroup
}

func NewManager(cfg Config, log *logger.Logger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}
}

// OnEvent registers the sole consumer of decoded inbound events. Must
// be set before Connect.
func (m *Manager) OnEvent(h func(events.Inbound)) {
	m.handler = h
}

// OnStateChange registers an observer for connection state transitions.
// Must be set before Connect.
func (m *Manager) OnStateChange(h func(State)) {
	m.stateHandler = h
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the realtime channel for one conversation. Calling it
// while connecting or connected is a no-op.
func (m *Manager) Connect(conversationID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return widget_errors.ErrClosed
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.conversationID = conversationID
	m.attempt = 0
	m.state = StateConnecting
	m.wg.Add(1)
	m.mu.Unlock()

	m.notifyState(StateConnecting)
	go m.dial()
	return nil
}

// Send writes one outbound frame. Valid only while connected; callers
// fall back to the request/response path on ErrNotConnected.
func (m *Manager) Send(ev events.Outbound) error {
	m.mu.Lock()
	conn := m.conn
	if m.state != StateConnected || conn == nil {
		m.mu.Unlock()
		return widget_errors.ErrNotConnected
	}
	m.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := m.writeFrame(conn, data); err != nil {
		// A broken write means the connection is gone; closing it wakes
		// the read loop, which drives the reconnect.
		_ = conn.Close()
		return fmt.Errorf("%w: %v", widget_errors.ErrNotConnected, err)
	}
	return nil
}

// Close tears the channel down and cancels any pending reconnect. A
// subsequent Connect on the same Manager is not supported; build a new
// one per conversation view.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	conn := m.conn
	m.conn = nil
	changed := m.state != StateDisconnected
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if changed {
		m.notifyState(StateDisconnected)
	}
	m.wg.Wait()
	return nil
}

func (m *Manager) dial() {
	defer m.wg.Done()

	m.mu.Lock()
	convID := m.conversationID
	m.mu.Unlock()

	ws, _, err := m.dialer.Dial(m.endpoint(convID), nil)
	if err != nil {
		m.log.Warnf("websocket dial failed: %v", err)
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.state = StateDisconnected
		m.mu.Unlock()
		m.notifyState(StateDisconnected)
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = ws.Close()
		return
	}
	m.conn = ws
	m.state = StateConnected
	m.attempt = 0
	m.wg.Add(1)
	m.mu.Unlock()

	m.notifyState(StateConnected)
	go m.runConnection(ws)
}

func (m *Manager) endpoint(conversationID string) string {
	q := url.Values{}
	q.Set("conversation_id", conversationID)
	if m.cfg.Token != "" {
		q.Set("token", m.cfg.Token)
	}
	sep := "?"
	if u, err := url.Parse(m.cfg.URL); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return m.cfg.URL + sep + q.Encode()
}

func (m *Manager) runConnection(ws *websocket.Conn) {
	defer m.wg.Done()

	done := make(chan struct{})
	m.wg.Add(1)
	go m.keepalive(ws, done)

	m.readLoop(ws)
	close(done)
	m.connectionLost(ws)
}

func (m *Manager) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.log.Warnf("websocket read failed: %v", err)
			}
			return
		}
		ev, err := events.Decode(data)
		if err != nil {
			// Undecodable frames are dropped, never forwarded.
			m.log.Warnf("dropping frame: %v", err)
			continue
		}
		if m.handler != nil {
			m.handler(ev)
		}
	}
}

// keepalive writes a ping frame on a fixed interval so silent failures
// surface as write errors.
func (m *Manager) keepalive(ws *websocket.Conn, done <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.KeepaliveInterval)
	defer ticker.Stop()

	ping, _ := json.Marshal(events.NewPing())
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := m.writeFrame(ws, ping); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}

func (m *Manager) writeFrame(ws *websocket.Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// connectionLost handles an unplanned close. The server may drop the
// socket at any time; unless Close was called, a reconnect is always
// scheduled.
func (m *Manager) connectionLost(ws *websocket.Conn) {
	m.mu.Lock()
	if m.conn != ws {
		// A newer connection already replaced this one.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	closed := m.closed
	changed := m.state != StateDisconnected
	m.state = StateDisconnected
	m.mu.Unlock()

	_ = ws.Close()
	if changed {
		m.notifyState(StateDisconnected)
	}
	if !closed {
		m.scheduleReconnect()
	}
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed || m.reconnectTimer != nil {
		m.mu.Unlock()
		return
	}
	m.attempt++
	attempt := m.attempt
	delay := m.backoff(attempt)
	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
	m.mu.Unlock()

	m.log.Infof("reconnecting in %s (attempt %d)", delay, attempt)
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.closed || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.wg.Add(1)
	m.mu.Unlock()

	m.notifyState(StateConnecting)
	m.dial()
}

// backoff doubles the delay per attempt up to the configured cap, with
// jitter in the upper half of the window.
func (m *Manager) backoff(attempt int) time.Duration {
	base := m.cfg.ReconnectMinDelay
	for i := 1; i < attempt && base < m.cfg.ReconnectMaxDelay; i++ {
		base *= 2
	}
	if base > m.cfg.ReconnectMaxDelay {
		base = m.cfg.ReconnectMaxDelay
	}
	half := base / 2
	if half <= 0 {
		return base
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}

func (m *Manager) notifyState(s State) {
	if m.stateHandler != nil {
		m.stateHandler(s)
	}
}
