package presence

import (
	"sort"
	"sync"
	"time"
)

// Signaler derives local typing-state transitions and tracks which
// remote identities are typing. Outbound signals are edge-triggered: a
// typing_start fires only on the not-typing to typing transition, and a
// typing_stop fires when the idle timer lapses or on an explicit flush.
// Rapid keystrokes therefore produce at most one start per idle window.
type Signaler struct {
	idleTimeout  time.Duration
	expiryWindow time.Duration
	onStart      func()
	onStop       func()

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	remote map[string]time.Time
	closed bool

	now func() time.Time
}

func NewSignaler(idleTimeout, expiryWindow time.Duration, onStart, onStop func()) *Signaler {
	return &Signaler{
		idleTimeout:  idleTimeout,
		expiryWindow: expiryWindow,
		onStart:      onStart,
		onStop:       onStop,
		remote:       make(map[string]time.Time),
		now:          time.Now,
	}
}

// Activity records one unit of local input, typically a keystroke. The
// idle timer is re-armed on every call.
func (s *Signaler) Activity() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fireStart := !s.typing
	s.typing = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.idleTimeout, s.idle)
	s.mu.Unlock()

	if fireStart && s.onStart != nil {
		s.onStart()
	}
}

// Flush forces an immediate typing_stop, used when the user submits.
func (s *Signaler) Flush() {
	s.mu.Lock()
	if s.closed || !s.typing {
		s.mu.Unlock()
		return
	}
	s.typing = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if s.onStop != nil {
		s.onStop()
	}
}

func (s *Signaler) idle() {
	s.mu.Lock()
	if s.closed || !s.typing {
		s.mu.Unlock()
		return
	}
	s.typing = false
	s.timer = nil
	s.mu.Unlock()

	if s.onStop != nil {
		s.onStop()
	}
}

// RemoteStarted marks a remote identity as typing.
func (s *Signaler) RemoteStarted(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.remote[userID] = s.now()
}

// RemoteStopped clears a remote identity.
func (s *Signaler) RemoteStopped(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.remote, userID)
}

// Typists returns the identities currently typing. Entries older than
// the expiry window count as stopped even without an explicit
// typing_stop.
func (s *Signaler) Typists() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.expiryWindow)
	out := make([]string, 0, len(s.remote))
	for id, seen := range s.remote {
		if seen.Before(cutoff) {
			delete(s.remote, id)
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close cancels the idle timer. No signals fire after Close.
func (s *Signaler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.typing = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
