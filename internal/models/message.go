package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind distinguishes plain text from GIF references.
type MessageKind string

const (
	KindText MessageKind = "TEXT"
	KindGif  MessageKind = "GIF"
)

// Valid reports whether the kind is one of the known values.
func (k MessageKind) Valid() bool {
	return k == KindText || k == KindGif
}

// Message represents a chat message. Deleted messages keep their content at
// rest; Redact nulls it out before the record crosses the API boundary.
type Message struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	ChatID    uuid.UUID   `db:"chat_id" json:"chat_id"`
	SenderID  uuid.UUID   `db:"sender_id" json:"sender_id"`
	Content   *string     `db:"content" json:"content"`
	Kind      MessageKind `db:"kind" json:"kind"`
	Read      bool        `db:"read" json:"read"`
	Deleted   bool        `db:"deleted" json:"deleted"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`

	Sender *UserSummary `db:"-" json:"sender,omitempty"`
}

// Redact clears the content of a deleted message. The stored row is left
// untouched so deletion stays auditable.
func (m *Message) Redact() {
	if m.Deleted {
		m.Content = nil
	}
}

// ChatEvent is broadcast through websockets to the members of a chat room.
type ChatEvent struct {
	Event     string     `json:"event"`
	ChatID    uuid.UUID  `json:"chat_id,omitempty"`
	Message   *Message   `json:"message,omitempty"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Event names pushed to clients.
const (
	EventMessage        = "message"
	EventMessageDeleted = "messageDeleted"
	EventNewChat        = "newChat"
	EventError          = "error"
)
