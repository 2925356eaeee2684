package cache

import (
	"codecollab/internal/model"
	"context"
	"sync"
)

// MemorySessionCache is an in-process SessionCache for single-node
// deployments and tests. State is local to the process, so it is not
// suitable when multiple instances serve the same sessions.
type MemorySessionCache struct {
	mu       sync.RWMutex
	sessions map[string]model.SessionState
}

// NewMemorySessionCache creates an in-memory session cache
func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{
		sessions: make(map[string]model.SessionState),
	}
}

func (c *MemorySessionCache) Get(ctx context.Context, sessionID string) (*model.SessionState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate cached state in place
	out := state
	out.Users = append([]model.User(nil), state.Users...)
	out.Cursors = append([]model.UserCursor(nil), state.Cursors...)
	return &out, nil
}

func (c *MemorySessionCache) Set(ctx context.Context, state *model.SessionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[state.SessionID] = *state
	return nil
}

func (c *MemorySessionCache) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

// MemoryPresenceCache is the in-process counterpart of the Redis presence
// cache: one roster map and one cursor map per session, keyed by user id.
type MemoryPresenceCache struct {
	mu      sync.RWMutex
	users   map[string]map[string]model.User
	cursors map[string]map[string]model.UserCursor
}

// NewMemoryPresenceCache creates an in-memory presence cache
func NewMemoryPresenceCache() *MemoryPresenceCache {
	return &MemoryPresenceCache{
		users:   make(map[string]map[string]model.User),
		cursors: make(map[string]map[string]model.UserCursor),
	}
}

func (c *MemoryPresenceCache) AddUser(ctx context.Context, sessionID string, user *model.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.users[sessionID] == nil {
		c.users[sessionID] = make(map[string]model.User)
	}
	c.users[sessionID][user.ID] = *user
	return nil
}

func (c *MemoryPresenceCache) RemoveUser(ctx context.Context, sessionID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users[sessionID], userID)
	return nil
}

func (c *MemoryPresenceCache) ListUsers(ctx context.Context, sessionID string) ([]model.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	users := make([]model.User, 0, len(c.users[sessionID]))
	for _, user := range c.users[sessionID] {
		users = append(users, user)
	}
	return users, nil
}

func (c *MemoryPresenceCache) SetCursor(ctx context.Context, sessionID string, cursor *model.UserCursor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursors[sessionID] == nil {
		c.cursors[sessionID] = make(map[string]model.UserCursor)
	}
	c.cursors[sessionID][cursor.UserID] = *cursor
	return nil
}

func (c *MemoryPresenceCache) RemoveCursor(ctx context.Context, sessionID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors[sessionID], userID)
	return nil
}

func (c *MemoryPresenceCache) GetCursors(ctx context.Context, sessionID string) ([]model.UserCursor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cursors := make([]model.UserCursor, 0, len(c.cursors[sessionID]))
	for _, cursor := range c.cursors[sessionID] {
		cursors = append(cursors, cursor)
	}
	return cursors, nil
}

// Interface compliance
var (
	_ SessionCache  = (*MemorySessionCache)(nil)
	_ PresenceCache = (*MemoryPresenceCache)(nil)
)
