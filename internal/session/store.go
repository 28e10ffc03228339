package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session records live under sess:<id>, written by the HTTP session
// middleware. This adapter only ever reads them.
const keyPrefix = "sess:"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoIdentity      = errors.New("session has no authenticated identity")
)

// Record is the subset of the serialized session this service cares about:
// the authenticated identity under passport.user.
type Record struct {
	Passport struct {
		User string `json:"user"`
	} `json:"passport"`
}

// Store reads session records from the shared Redis instance.
type Store struct {
	client *redis.Client
}

// NewStore wraps an existing Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// NewClient builds a Redis client for the shared session store.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Get fetches and parses a session record.
func (s *Store) Get(ctx context.Context, sessionID string) (Record, error) {
	data, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("session lookup: %w", err)
	}
	return parseRecord(data)
}

func parseRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse session record: %w", err)
	}
	if rec.Passport.User == "" {
		return Record{}, ErrNoIdentity
	}
	return rec, nil
}

// Authenticator resolves a raw session cookie to an authenticated identity.
// Injected into both the HTTP auth middleware and the websocket handshake so
// the two entry points share one trust boundary.
type Authenticator struct {
	secret  string
	store   *Store
	timeout time.Duration
}

// NewAuthenticator builds an Authenticator. timeout bounds the session lookup
// so a hung Redis call cannot pin a connection attempt.
func NewAuthenticator(secret string, store *Store, timeout time.Duration) *Authenticator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Authenticator{secret: secret, store: store, timeout: timeout}
}

// Authenticate verifies the cookie signature, loads the session record and
// returns the identity it names. Every failure mode (bad signature, missing
// record, identity-less record) comes back as an error; callers reject the
// request or connection outright.
func (a *Authenticator) Authenticate(ctx context.Context, rawCookie string) (uuid.UUID, error) {
	sessionID, err := Verify(a.secret, rawCookie)
	if err != nil {
		return uuid.Nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rec, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return uuid.Nil, err
	}

	userID, err := uuid.Parse(rec.Passport.User)
	if err != nil {
		return uuid.Nil, ErrNoIdentity
	}
	return userID, nil
}
