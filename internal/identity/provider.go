package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dm-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// Provider resolves identity ids to display fields. The account service owns
// the data; this service only reads it for chat and message serialization.
type Provider interface {
	Summaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.UserSummary, error)
	LookupByUsername(ctx context.Context, username string) (models.UserSummary, error)
}

// PostgresProvider reads identity summaries from the shared users table.
type PostgresProvider struct {
	db *sqlx.DB
}

// NewPostgresProvider constructs a PostgresProvider.
func NewPostgresProvider(db *sqlx.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// Summaries fetches display fields for a set of identities. Unknown ids are
// simply absent from the result.
func (p *PostgresProvider) Summaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.UserSummary, error) {
	result := make(map[uuid.UUID]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []models.UserSummary
	err := p.db.SelectContext(ctx, &users,
		`SELECT id, username, COALESCE(profile_picture, '') AS profile_picture
         FROM users WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// LookupByUsername resolves a username to its identity summary.
func (p *PostgresProvider) LookupByUsername(ctx context.Context, username string) (models.UserSummary, error) {
	var user models.UserSummary
	err := p.db.GetContext(ctx, &user,
		`SELECT id, username, COALESCE(profile_picture, '') AS profile_picture
         FROM users WHERE username=$1`,
		username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserSummary{}, ErrUserNotFound
	}
	return user, err
}
