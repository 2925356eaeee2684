package cache

import (
	"codecollab/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceCache handles Redis operations for a session's roster and cursor
// table. Both live in per-session hashes keyed by connection id, so removal
// and overwrite are single-field operations. The roster and cursor table are
// independent keys; callers keep them consistent, the cache does not.
type PresenceCache interface {
	AddUser(ctx context.Context, sessionID string, user *model.User) error
	RemoveUser(ctx context.Context, sessionID, userID string) error
	ListUsers(ctx context.Context, sessionID string) ([]model.User, error)

	SetCursor(ctx context.Context, sessionID string, cursor *model.UserCursor) error
	RemoveCursor(ctx context.Context, sessionID, userID string) error
	GetCursors(ctx context.Context, sessionID string) ([]model.UserCursor, error)
}

type presenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceCache creates a new presence cache
func NewPresenceCache(client *redis.Client) PresenceCache {
	return &presenceCache{
		client: client,
		ttl:    SessionTTL,
	}
}

func (c *presenceCache) usersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:users", sessionID)
}

func (c *presenceCache) cursorsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:cursors", sessionID)
}

func (c *presenceCache) AddUser(ctx context.Context, sessionID string, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	key := c.usersKey(sessionID)
	if err := c.client.HSet(ctx, key, user.ID, data).Err(); err != nil {
		return err
	}
	return c.client.Expire(ctx, key, c.ttl).Err()
}

func (c *presenceCache) RemoveUser(ctx context.Context, sessionID, userID string) error {
	return c.client.HDel(ctx, c.usersKey(sessionID), userID).Err()
}

func (c *presenceCache) ListUsers(ctx context.Context, sessionID string) ([]model.User, error) {
	entries, err := c.client.HGetAll(ctx, c.usersKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(entries))
	for _, data := range entries {
		var user model.User
		if err := json.Unmarshal([]byte(data), &user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (c *presenceCache) SetCursor(ctx context.Context, sessionID string, cursor *model.UserCursor) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return err
	}
	key := c.cursorsKey(sessionID)
	if err := c.client.HSet(ctx, key, cursor.UserID, data).Err(); err != nil {
		return err
	}
	return c.client.Expire(ctx, key, c.ttl).Err()
}

func (c *presenceCache) RemoveCursor(ctx context.Context, sessionID, userID string) error {
	return c.client.HDel(ctx, c.cursorsKey(sessionID), userID).Err()
}

func (c *presenceCache) GetCursors(ctx context.Context, sessionID string) ([]model.UserCursor, error) {
	entries, err := c.client.HGetAll(ctx, c.cursorsKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	cursors := make([]model.UserCursor, 0, len(entries))
	for _, data := range entries {
		var cursor model.UserCursor
		if err := json.Unmarshal([]byte(data), &cursor); err != nil {
			return nil, err
		}
		cursors = append(cursors, cursor)
	}
	return cursors, nil
}
