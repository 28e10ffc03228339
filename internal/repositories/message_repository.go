package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

// MessageRepository owns message creation, soft deletion and the read-state
// transition, including deletion redaction and watermark filtering.
type MessageRepository interface {
	Create(ctx context.Context, chatID, senderID uuid.UUID, content string, kind models.MessageKind) (models.Message, error)
	Get(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	SoftDelete(ctx context.Context, chatID, messageID, userID uuid.UUID) (models.Message, error)
	ListForChat(ctx context.Context, chatID, userID uuid.UUID) ([]models.Message, error)
	CountUnread(ctx context.Context, userID uuid.UUID, visibleOnly bool) (int, error)
}

// MessageRepo is a sqlx-backed repository. It holds the chat repository so a
// freshly persisted message can clear the recipient's hidden flag.
type MessageRepo struct {
	db    *sqlx.DB
	chats ChatRepository
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB, chats ChatRepository) *MessageRepo {
	return &MessageRepo{db: db, chats: chats}
}

const messageColumns = `id, chat_id, sender_id, content, kind, "read", deleted, created_at`

// Create persists a message and then clears the recipient's hidden flag so the
// chat reappears for them. Only the recipient side is unhidden; a sender who
// hid the chat themselves keeps it hidden.
func (r *MessageRepo) Create(ctx context.Context, chatID, senderID uuid.UUID, content string, kind models.MessageKind) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyContent
	}
	if kind == "" {
		kind = models.KindText
	}
	if !kind.Valid() {
		return models.Message{}, ErrInvalidKind
	}

	chat, err := r.chats.Get(ctx, chatID)
	if err != nil {
		return models.Message{}, err
	}
	if !chat.HasParticipant(senderID) {
		return models.Message{}, ErrNotParticipant
	}

	var msg models.Message
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, content, kind) VALUES ($1, $2, $3, $4)
         RETURNING `+messageColumns,
		chatID, senderID, content, kind).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	if err := r.chats.UnhideFor(ctx, chatID, chat.OtherParticipant(senderID)); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDelete marks a message deleted on behalf of its sender. The deletion
// also forces the read flag: a deleted message cannot stay unread. The guard
// conditions live in the UPDATE itself so a double delete loses the race
// cleanly instead of clobbering state.
func (r *MessageRepo) SoftDelete(ctx context.Context, chatID, messageID, userID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET deleted=TRUE, "read"=TRUE
         WHERE id=$1 AND chat_id=$2 AND sender_id=$3 AND deleted=FALSE
         RETURNING `+messageColumns,
		messageID, chatID, userID).StructScan(&msg)
	if err == nil {
		msg.Redact()
		return msg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, err
	}

	// Nothing matched: tell the caller why.
	existing, getErr := r.Get(ctx, messageID)
	if getErr != nil {
		return models.Message{}, getErr
	}
	switch {
	case existing.ChatID != chatID:
		return models.Message{}, ErrMessageNotFound
	case existing.SenderID != userID:
		return models.Message{}, ErrNotSender
	case existing.Deleted:
		return models.Message{}, ErrMessageDeleted
	default:
		return models.Message{}, ErrMessageNotFound
	}
}

// ListForChat returns the chat's messages as visible to the user: messages at
// or before the user's watermark are excluded, deleted messages are redacted,
// and every unread message from the other participant is marked read first.
// The read transition is a documented side effect of fetching a chat.
func (r *MessageRepo) ListForChat(ctx context.Context, chatID, userID uuid.UUID) ([]models.Message, error) {
	chat, err := r.chats.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE messages SET "read"=TRUE WHERE chat_id=$1 AND sender_id<>$2 AND "read"=FALSE`,
		chatID, userID); err != nil {
		return nil, err
	}

	var msgs []models.Message
	err = r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE chat_id=$1 AND ($2::timestamptz IS NULL OR created_at > $2)
         ORDER BY created_at ASC`,
		chatID, chat.WatermarkFor(userID))
	if err != nil {
		return nil, err
	}

	for i := range msgs {
		msgs[i].Redact()
	}
	return msgs, nil
}

// CountUnread counts unread messages addressed to the user across all their
// chats. With visibleOnly set, chats currently hidden by the user are skipped.
func (r *MessageRepo) CountUnread(ctx context.Context, userID uuid.UUID, visibleOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM messages m
        JOIN chats c ON c.id = m.chat_id
        WHERE m."read"=FALSE AND m.sender_id<>$1
          AND (c.user_one_id=$1 OR c.user_two_id=$1)`
	if visibleOnly {
		query += ` AND ((c.user_one_id=$1 AND NOT c.hidden_by_one) OR (c.user_two_id=$1 AND NOT c.hidden_by_two))`
	}

	var count int
	err := r.db.GetContext(ctx, &count, query, userID)
	return count, err
}
