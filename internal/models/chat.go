package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat represents a private conversation between exactly two users. Each
// participant owns an independent hidden flag plus the watermark recorded when
// they last hid the chat; messages at or before the watermark stay invisible
// to that participant even after the chat reappears.
type Chat struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserOneID      uuid.UUID  `db:"user_one_id" json:"user_one_id"`
	UserTwoID      uuid.UUID  `db:"user_two_id" json:"user_two_id"`
	HiddenByOne    bool       `db:"hidden_by_one" json:"-"`
	HiddenSinceOne *time.Time `db:"hidden_since_one" json:"-"`
	HiddenByTwo    bool       `db:"hidden_by_two" json:"-"`
	HiddenSinceTwo *time.Time `db:"hidden_since_two" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether the user occupies either slot of the chat.
func (c Chat) HasParticipant(userID uuid.UUID) bool {
	return c.UserOneID == userID || c.UserTwoID == userID
}

// OtherParticipant returns the participant opposite the given user.
func (c Chat) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.UserOneID == userID {
		return c.UserTwoID
	}
	return c.UserOneID
}

// HiddenFor reports whether the chat is currently hidden for the user.
func (c Chat) HiddenFor(userID uuid.UUID) bool {
	if c.UserOneID == userID {
		return c.HiddenByOne
	}
	if c.UserTwoID == userID {
		return c.HiddenByTwo
	}
	return false
}

// WatermarkFor returns the user's deletion watermark, or nil if they never hid
// the chat. The watermark outlives the hidden flag: clearing the flag reopens
// the chat without resurrecting history.
func (c Chat) WatermarkFor(userID uuid.UUID) *time.Time {
	if c.UserOneID == userID {
		return c.HiddenSinceOne
	}
	if c.UserTwoID == userID {
		return c.HiddenSinceTwo
	}
	return nil
}

// UserSummary carries the display fields of an identity owned by the account
// service. Read-only from this service's point of view.
type UserSummary struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	ProfilePicture string    `db:"profile_picture" json:"profile_picture,omitempty"`
}

// ChatSummary provides the API-friendly view of a chat for one user,
// including a preview of the most recent message.
type ChatSummary struct {
	ChatID        uuid.UUID    `json:"chat_id"`
	FriendID      uuid.UUID    `json:"friend_id"`
	Friend        *UserSummary `json:"friend,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	LastMessage   *string      `json:"last_message,omitempty"`
	LastSenderID  *uuid.UUID   `json:"last_sender_id,omitempty"`
	LastMessageAt *time.Time   `json:"last_message_at,omitempty"`
	LastRead      *bool        `json:"last_read,omitempty"`
}
