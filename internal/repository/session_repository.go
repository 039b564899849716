package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/mathcomp-api/internal/models"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

const sessionKeyPrefix = "session:"

// SessionRepository keeps the server-side record of issued access tokens.
// Sessions live in Redis when a client is configured and in process memory
// otherwise.
type SessionRepository struct {
	client *redis.Client
	now    func() time.Time

	mu    sync.Mutex
	local map[string]models.Session
}

// NewSessionRepository constructs a session store. client may be nil.
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{
		client: client,
		now:    time.Now,
		local:  make(map[string]models.Session),
	}
}

// Save stores the session until its expiry.
func (r *SessionRepository) Save(ctx context.Context, session models.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("save session %s: already expired", session.ID)
	}
	if r.client == nil {
		r.mu.Lock()
		r.local[session.ID] = session
		r.mu.Unlock()
		return nil
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// Get returns an open session.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	if r.client == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		session, ok := r.local[id]
		if !ok {
			return nil, ErrSessionNotFound
		}
		if !r.now().Before(session.ExpiresAt) {
			delete(r.local, id)
			return nil, ErrSessionNotFound
		}
		return &session, nil
	}

	raw, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete closes a session. Deleting an unknown session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if r.client == nil {
		r.mu.Lock()
		delete(r.local, id)
		r.mu.Unlock()
		return nil
	}
	if err := r.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
