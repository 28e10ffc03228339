package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dm-service/internal/models"
)

// FindOrCreateResult annotates the resolved chat with how it was resolved:
// Created means a new row was inserted, AlreadyVisible means the requester's
// hidden flag was already clear before the call.
type FindOrCreateResult struct {
	Chat           models.Chat
	Created        bool
	AlreadyVisible bool
}

// ChatRepository owns the lifecycle of two-party chats: creation, lookup and
// per-participant soft deletion.
type ChatRepository interface {
	FindOrCreate(ctx context.Context, userID, otherID uuid.UUID) (FindOrCreateResult, error)
	Get(ctx context.Context, chatID uuid.UUID) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
	Hide(ctx context.Context, chatID, userID uuid.UUID) error
	UnhideFor(ctx context.Context, chatID, userID uuid.UUID) error
	ListVisibleFor(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error)
	ListIDsFor(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, user_one_id, user_two_id, hidden_by_one, hidden_since_one, hidden_by_two, hidden_since_two, created_at`

// FindOrCreate resolves the chat for an unordered pair of users, creating it
// when absent. For an existing chat hidden by the requester, the requester's
// hidden flag is cleared (the watermark is kept) so the chat reopens for them.
func (r *ChatRepo) FindOrCreate(ctx context.Context, userID, otherID uuid.UUID) (FindOrCreateResult, error) {
	if userID == otherID {
		return FindOrCreateResult{}, ErrSelfChat
	}

	chat, err := r.getByPair(ctx, userID, otherID)
	if err == nil {
		res := FindOrCreateResult{Chat: chat, AlreadyVisible: !chat.HiddenFor(userID)}
		if !res.AlreadyVisible {
			if err := r.UnhideFor(ctx, chat.ID, userID); err != nil {
				return FindOrCreateResult{}, err
			}
			res.Chat, err = r.Get(ctx, chat.ID)
			if err != nil {
				return FindOrCreateResult{}, err
			}
		}
		return res, nil
	}
	if !errors.Is(err, ErrChatNotFound) {
		return FindOrCreateResult{}, err
	}

	var created models.Chat
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO chats (user_one_id, user_two_id) VALUES ($1, $2) RETURNING `+chatColumns,
		userID, otherID).StructScan(&created)
	if err == nil {
		return FindOrCreateResult{Chat: created, Created: true, AlreadyVisible: true}, nil
	}

	// Two concurrent creates for the same pair race on the unique index;
	// the loser resolves the winner's row instead of surfacing the conflict.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		chat, lookupErr := r.getByPair(ctx, userID, otherID)
		if lookupErr != nil {
			return FindOrCreateResult{}, lookupErr
		}
		return FindOrCreateResult{Chat: chat, AlreadyVisible: !chat.HiddenFor(userID)}, nil
	}
	return FindOrCreateResult{}, err
}

func (r *ChatRepo) getByPair(ctx context.Context, userID, otherID uuid.UUID) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT `+chatColumns+` FROM chats
         WHERE (user_one_id=$1 AND user_two_id=$2) OR (user_one_id=$2 AND user_two_id=$1)`,
		userID, otherID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// Get fetches a chat by id.
func (r *ChatRepo) Get(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1 AND (user_one_id=$2 OR user_two_id=$2))`,
		chatID, userID)
	return exists, err
}

// Hide marks the chat hidden for the requester and records the watermark. The
// other participant's state is untouched. The flag and watermark flip in a
// single statement so a concurrent message create cannot observe a half
// transition.
func (r *ChatRepo) Hide(ctx context.Context, chatID, userID uuid.UUID) error {
	chat, err := r.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return ErrNotParticipant
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE chats SET
           hidden_by_one    = CASE WHEN user_one_id=$2 THEN TRUE  ELSE hidden_by_one    END,
           hidden_since_one = CASE WHEN user_one_id=$2 THEN NOW() ELSE hidden_since_one END,
           hidden_by_two    = CASE WHEN user_two_id=$2 THEN TRUE  ELSE hidden_by_two    END,
           hidden_since_two = CASE WHEN user_two_id=$2 THEN NOW() ELSE hidden_since_two END
         WHERE id=$1`,
		chatID, userID)
	return err
}

// UnhideFor clears the user's hidden flag when set. The watermark is retained
// so messages from before the hide stay filtered out.
func (r *ChatRepo) UnhideFor(ctx context.Context, chatID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET
           hidden_by_one = CASE WHEN user_one_id=$2 THEN FALSE ELSE hidden_by_one END,
           hidden_by_two = CASE WHEN user_two_id=$2 THEN FALSE ELSE hidden_by_two END
         WHERE id=$1
           AND ((user_one_id=$2 AND hidden_by_one) OR (user_two_id=$2 AND hidden_by_two))`,
		chatID, userID)
	return err
}

type chatSummaryRow struct {
	models.Chat
	LastContent   *string    `db:"last_content"`
	LastDeleted   *bool      `db:"last_deleted"`
	LastSenderID  *uuid.UUID `db:"last_sender_id"`
	LastRead      *bool      `db:"last_read"`
	LastCreatedAt *time.Time `db:"last_created_at"`
}

// ListVisibleFor returns the chats not hidden by the user, most recently
// active first. Activity is the latest message timestamp, falling back to the
// chat's creation time for empty chats.
func (r *ChatRepo) ListVisibleFor(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	query := `SELECT c.id, c.user_one_id, c.user_two_id,
           c.hidden_by_one, c.hidden_since_one, c.hidden_by_two, c.hidden_since_two, c.created_at,
           m.content AS last_content, m.deleted AS last_deleted,
           m.sender_id AS last_sender_id, m."read" AS last_read, m.created_at AS last_created_at
        FROM chats c
        LEFT JOIN LATERAL (
            SELECT content, deleted, sender_id, "read", created_at
            FROM messages WHERE chat_id = c.id
            ORDER BY created_at DESC LIMIT 1
        ) m ON TRUE
        WHERE (c.user_one_id=$1 AND NOT c.hidden_by_one) OR (c.user_two_id=$1 AND NOT c.hidden_by_two)
        ORDER BY COALESCE(m.created_at, c.created_at) DESC, c.created_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ChatSummary
	for rows.Next() {
		var row chatSummaryRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		summary := models.ChatSummary{
			ChatID:        row.ID,
			FriendID:      row.OtherParticipant(userID),
			CreatedAt:     row.Chat.CreatedAt,
			LastSenderID:  row.LastSenderID,
			LastMessageAt: row.LastCreatedAt,
			LastRead:      row.LastRead,
		}
		if row.LastContent != nil && (row.LastDeleted == nil || !*row.LastDeleted) {
			summary.LastMessage = row.LastContent
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}

// ListIDsFor returns every chat id the user participates in, hidden or not.
// Used for websocket room joins: a hidden chat can reappear at any moment and
// its room must already contain the user's connections.
func (r *ChatRepo) ListIDsFor(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM chats WHERE user_one_id=$1 OR user_two_id=$1`, userID)
	return ids, err
}
