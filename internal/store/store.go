package store

import (
	"sync"
	"time"

	"sentinal-widget/internal/domain"
	widget_errors "sentinal-widget/pkg/errors"
)

// Update is a partial mutation applied to an existing message. Nil
// fields are left untouched. NewID promotes the local identifier to the
// server-assigned one; the entry keeps its position.
type Update struct {
	NewID       *string
	Status      *domain.DeliveryStatus
	Content     *string
	Attachments *[]domain.Attachment
	Reactions   *[]domain.Reaction
	EditedAt    *time.Time
	DeletedAt   *time.Time
	Metadata    map[string]interface{}
}

// Store is the in-memory ordered message collection for one
// conversation. Entries stay in append order; completion-order effects
// are applied in place via identifier lookup.
type Store struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*domain.Message
}

func New() *Store {
	return &Store{
		byID: make(map[string]*domain.Message),
	}
}

// Append inserts a message at the end of the timeline.
func (s *Store) Append(msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[msg.ID]; ok {
		return widget_errors.ErrAlreadyExists
	}
	m := msg.Clone()
	s.byID[m.ID] = &m
	s.order = append(s.order, m.ID)
	return nil
}

// Update merges the given fields into an existing entry.
func (s *Store) Update(id string, upd Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.byID[id]
	if !ok {
		return widget_errors.ErrNotFound
	}

	if upd.NewID != nil && *upd.NewID != id {
		newID := *upd.NewID
		if _, exists := s.byID[newID]; exists {
			return widget_errors.ErrAlreadyExists
		}
		delete(s.byID, id)
		msg.ID = newID
		s.byID[newID] = msg
		for i, oid := range s.order {
			if oid == id {
				s.order[i] = newID
				break
			}
		}
	}
	if upd.Status != nil {
		msg.Status = *upd.Status
	}
	if upd.Content != nil {
		msg.Content = *upd.Content
	}
	if upd.Attachments != nil {
		msg.Attachments = append([]domain.Attachment(nil), (*upd.Attachments)...)
	}
	if upd.Reactions != nil {
		msg.Reactions = append([]domain.Reaction(nil), (*upd.Reactions)...)
	}
	if upd.EditedAt != nil {
		t := *upd.EditedAt
		msg.EditedAt = &t
	}
	if upd.DeletedAt != nil {
		t := *upd.DeletedAt
		msg.DeletedAt = &t
	}
	if upd.Metadata != nil {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]interface{}, len(upd.Metadata))
		}
		for k, v := range upd.Metadata {
			msg.Metadata[k] = v
		}
	}
	return nil
}

// Get returns a copy of one message.
func (s *Store) Get(id string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byID[id]
	if !ok {
		return domain.Message{}, false
	}
	return msg.Clone(), true
}

// All returns a snapshot of the timeline in append order. Later store
// mutations are not visible through the returned slice.
func (s *Store) All() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Len returns the number of entries, deleted ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Clear empties the store for a conversation reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.byID = make(map[string]*domain.Message)
}
