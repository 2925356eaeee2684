package cache

import (
	"codecollab/internal/model"
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionTTL is how long a session and its presence collections survive
// without being touched. Every write refreshes it.
const SessionTTL = time.Hour

// SessionCache handles Redis operations for live session state
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*model.SessionState, error)
	Set(ctx context.Context, state *model.SessionState) error
	Delete(ctx context.Context, sessionID string) error
}

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache creates a new session cache
func NewSessionCache(client *redis.Client) SessionCache {
	return &sessionCache{
		client: client,
		ttl:    SessionTTL,
	}
}

func (c *sessionCache) key(sessionID string) string {
	return "session:" + sessionID
}

func (c *sessionCache) Get(ctx context.Context, sessionID string) (*model.SessionState, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state model.SessionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *sessionCache) Set(ctx context.Context, state *model.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(state.SessionID), data, c.ttl).Err()
}

func (c *sessionCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}
