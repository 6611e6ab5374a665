package domain

import (
	"time"
)

// DeliveryStatus tracks a message through the send pipeline.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// CanTransition reports whether moving to the target status is a legal
// step of the delivery state machine. sending may jump straight to
// delivered on the fallback path.
func (s DeliveryStatus) CanTransition(to DeliveryStatus) bool {
	switch s {
	case StatusSending:
		return to == StatusSent || to == StatusDelivered || to == StatusFailed
	case StatusSent:
		return to == StatusDelivered || to == StatusRead
	case StatusDelivered:
		return to == StatusRead
	default:
		return false
	}
}

// Terminal reports whether no further status transition is expected.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusRead || s == StatusFailed
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentKind is the declared media kind of an upload.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment is the server-assigned reference for one completed upload.
// Immutable once created.
type Attachment struct {
	ID           string         `json:"id"`
	Kind         AttachmentKind `json:"kind"`
	Filename     string         `json:"filename"`
	SizeBytes    int64          `json:"size_bytes"`
	URL          string         `json:"url"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
}

// Reaction aggregates one emoji on a message.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"user_ids,omitempty"`
}

// ReplyRef is a denormalized back-reference to the message being
// replied to, not ownership of it.
type ReplyRef struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content,omitempty"`
}

// Message is one entry in a conversation timeline. The ID starts as a
// locally generated identifier and may be promoted exactly once to the
// server-assigned one.
type Message struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Content        string                 `json:"content"`
	Role           Role                   `json:"role"`
	Status         DeliveryStatus         `json:"status"`
	Attachments    []Attachment           `json:"attachments,omitempty"`
	Reactions      []Reaction             `json:"reactions,omitempty"`
	ReplyTo        *ReplyRef              `json:"reply_to,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	EditedAt       *time.Time             `json:"edited_at,omitempty"`
	DeletedAt      *time.Time             `json:"deleted_at,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Deleted reports whether the message must be hidden from rendering.
// The record itself stays in the store.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Clone returns a deep copy so callers can hold a snapshot without
// observing later mutations.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Reactions != nil {
		out.Reactions = make([]Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			out.Reactions[i] = r
			if r.UserIDs != nil {
				out.Reactions[i].UserIDs = append([]string(nil), r.UserIDs...)
			}
		}
	}
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		out.ReplyTo = &ref
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		out.DeletedAt = &t
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
