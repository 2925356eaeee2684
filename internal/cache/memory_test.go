package cache

import (
	"codecollab/internal/model"
	"context"
	"testing"
)

func TestMemorySessionCacheRoundTrip(t *testing.T) {
	c := NewMemorySessionCache()
	ctx := context.Background()

	got, err := c.Get(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("Get of absent session = (%v, %v), want (nil, nil)", got, err)
	}

	state := &model.SessionState{
		SessionID:   "s1",
		Code:        "x = 1",
		Language:    "python",
		LastUpdated: 42,
	}
	if err := c.Set(ctx, state); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err = c.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Code != "x = 1" || got.Language != "python" || got.LastUpdated != 42 {
		t.Fatalf("Get = %+v, want the stored state", got)
	}

	// Mutating the returned state must not leak into the cache
	got.Code = "mutated"
	again, _ := c.Get(ctx, "s1")
	if again.Code != "x = 1" {
		t.Fatal("cache state was mutated through a Get result")
	}

	if err := c.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, _ = c.Get(ctx, "s1")
	if got != nil {
		t.Fatalf("Get after Delete = %+v, want nil", got)
	}
}

func TestMemoryPresenceRosterUniqueByID(t *testing.T) {
	c := NewMemoryPresenceCache()
	ctx := context.Background()

	c.AddUser(ctx, "s1", &model.User{ID: "u1", Username: "alice", Color: "#FF6B6B"})
	c.AddUser(ctx, "s1", &model.User{ID: "u2", Username: "bob", Color: "#4ECDC4"})
	// Same id again: overwrite, not duplicate
	c.AddUser(ctx, "s1", &model.User{ID: "u1", Username: "alice", Color: "#45B7D1"})

	users, err := c.ListUsers(ctx, "s1")
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("roster = %+v, want 2 unique users", users)
	}

	if err := c.RemoveUser(ctx, "s1", "u1"); err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}
	users, _ = c.ListUsers(ctx, "s1")
	if len(users) != 1 || users[0].ID != "u2" {
		t.Fatalf("roster after removal = %+v, want [u2]", users)
	}
}

func TestMemoryPresenceCursorOverwrite(t *testing.T) {
	c := NewMemoryPresenceCache()
	ctx := context.Background()

	c.SetCursor(ctx, "s1", &model.UserCursor{
		UserID:   "u1",
		Position: model.CursorPosition{Line: 1, Column: 1},
	})
	c.SetCursor(ctx, "s1", &model.UserCursor{
		UserID:   "u1",
		Position: model.CursorPosition{Line: 7, Column: 3},
		Selection: &model.SelectionRange{
			StartLine: 7, StartColumn: 1, EndLine: 7, EndColumn: 3,
		},
	})

	cursors, err := c.GetCursors(ctx, "s1")
	if err != nil {
		t.Fatalf("GetCursors: %v", err)
	}
	if len(cursors) != 1 {
		t.Fatalf("cursor table = %+v, want one entry per user", cursors)
	}
	if cursors[0].Position.Line != 7 || cursors[0].Selection == nil {
		t.Fatalf("cursor = %+v, want the second write", cursors[0])
	}

	if err := c.RemoveCursor(ctx, "s1", "u1"); err != nil {
		t.Fatalf("RemoveCursor: %v", err)
	}
	cursors, _ = c.GetCursors(ctx, "s1")
	if len(cursors) != 0 {
		t.Fatalf("cursor table after removal = %+v, want empty", cursors)
	}
}

func TestMemoryPresenceSessionsAreIsolated(t *testing.T) {
	c := NewMemoryPresenceCache()
	ctx := context.Background()

	c.AddUser(ctx, "s1", &model.User{ID: "u1", Username: "alice"})
	c.AddUser(ctx, "s2", &model.User{ID: "u1", Username: "alice"})

	c.RemoveUser(ctx, "s1", "u1")

	s2, _ := c.ListUsers(ctx, "s2")
	if len(s2) != 1 {
		t.Fatalf("s2 roster = %+v, want untouched by s1 removal", s2)
	}
}
