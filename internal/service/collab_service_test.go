package service

import (
	"codecollab/internal/broker/memory"
	"codecollab/internal/cache"
	"codecollab/internal/model"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// --- Test doubles ---

type fakeSessionRepo struct {
	mu      sync.Mutex
	records map[string]model.SessionRecord
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{records: make(map[string]model.SessionRecord)}
}

func (r *fakeSessionRepo) Upsert(ctx context.Context, record *model.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = *record
	return nil
}

func (r *fakeSessionRepo) UpsertCode(ctx context.Context, id, code string, updatedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[id]
	rec.ID = id
	rec.Code = code
	rec.UpdatedAt = updatedAt
	r.records[id] = rec
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

type fakeParticipantRepo struct {
	mu      sync.Mutex
	upserts []model.Participant
	touches []string
}

func (r *fakeParticipantRepo) UpsertSeen(ctx context.Context, p *model.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, *p)
	return nil
}

func (r *fakeParticipantRepo) TouchSeen(ctx context.Context, userID string, lastSeen int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches = append(r.touches, userID)
	return nil
}

func (r *fakeParticipantRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Participant, error) {
	return nil, nil
}

type sentEvent struct {
	SessionID string
	ConnID    string // recipient for direct sends
	Except    string // excluded connection for broadcasts
	Event     string
	Payload   interface{}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (b *recordingBroadcaster) SendToConnection(sessionID, connID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{SessionID: sessionID, ConnID: connID, Event: event, Payload: payload})
}

func (b *recordingBroadcaster) BroadcastToOthers(sessionID, exceptConnID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{SessionID: sessionID, Except: exceptConnID, Event: event, Payload: payload})
}

func (b *recordingBroadcaster) byEvent(event string) []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentEvent
	for _, ev := range b.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

type engineEnv struct {
	svc         *CollabService
	sessions    *cache.MemorySessionCache
	presence    *cache.MemoryPresenceCache
	sessionRepo *fakeSessionRepo
	parts       *fakeParticipantRepo
	broker      *memory.Broker
	sent        *recordingBroadcaster
}

func newEngineEnv(t *testing.T, instanceID string) *engineEnv {
	t.Helper()
	env := &engineEnv{
		sessions:    cache.NewMemorySessionCache(),
		presence:    cache.NewMemoryPresenceCache(),
		sessionRepo: newFakeSessionRepo(),
		parts:       &fakeParticipantRepo{},
		broker:      memory.New(),
		sent:        &recordingBroadcaster{},
	}
	env.svc = NewCollabService(env.sessions, env.presence, env.sessionRepo, env.parts, env.broker, instanceID)
	env.svc.SetBroadcaster(env.sent)
	return env
}

func inPalette(color string) bool {
	for _, c := range model.UserColors {
		if c == color {
			return true
		}
	}
	return false
}

// --- Tests ---

func TestJoinRejectsMissingFields(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	cases := []struct {
		name      string
		sessionID string
		username  string
	}{
		{"missing session id", "", "alice"},
		{"missing username", "s1", ""},
		{"missing both", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Join(ctx, tc.sessionID, tc.username, "conn-a")
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("Join returned %v, want ErrInvalidRequest", err)
			}
		})
	}

	if n := len(env.sent.events); n != 0 {
		t.Fatalf("rejected joins produced %d events, want 0", n)
	}
}

func TestJoinCreatesSessionWithDefaults(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	state, err := env.svc.Join(ctx, "s1", "alice", "conn-a")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if state.Code != "" {
		t.Errorf("fresh session code = %q, want empty", state.Code)
	}
	if state.Language != "javascript" {
		t.Errorf("fresh session language = %q, want javascript", state.Language)
	}
	if len(state.Users) != 1 || state.Users[0].ID != "conn-a" || state.Users[0].Username != "alice" {
		t.Fatalf("users = %+v, want exactly alice/conn-a", state.Users)
	}
	if !inPalette(state.Users[0].Color) {
		t.Errorf("color %q not in palette", state.Users[0].Color)
	}

	pushes := env.sent.byEvent(EventSessionState)
	if len(pushes) != 1 || pushes[0].ConnID != "conn-a" {
		t.Fatalf("session-state pushes = %+v, want one to conn-a", pushes)
	}
	joins := env.sent.byEvent(EventUserJoined)
	if len(joins) != 1 || joins[0].Except != "conn-a" {
		t.Fatalf("user-joined broadcasts = %+v, want one excluding conn-a", joins)
	}

	cached, err := env.sessions.Get(ctx, "s1")
	if err != nil || cached == nil {
		t.Fatalf("session missing from store after join (err=%v)", err)
	}
}

func TestJoinSeedsFromDurableRecord(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	env.sessionRepo.Upsert(ctx, &model.SessionRecord{
		ID:       "s1",
		Code:     "print('hi')",
		Language: "python",
	})

	state, err := env.svc.Join(ctx, "s1", "alice", "conn-a")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if state.Code != "print('hi')" {
		t.Errorf("seeded code = %q, want durable record's code", state.Code)
	}
	if state.Language != "python" {
		t.Errorf("seeded language = %q, want python", state.Language)
	}
}

func TestRosterHasOneUserPerConnection(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	for _, conn := range []string{"conn-a", "conn-b", "conn-c"} {
		if _, err := env.svc.Join(ctx, "s1", "user-"+conn, conn); err != nil {
			t.Fatalf("Join %s: %v", conn, err)
		}
	}
	// Re-join is idempotent at the roster level
	if _, err := env.svc.Join(ctx, "s1", "user-conn-a", "conn-a"); err != nil {
		t.Fatalf("re-join: %v", err)
	}

	users, err := env.presence.ListUsers(ctx, "s1")
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("roster has %d entries, want 3", len(users))
	}
	seen := make(map[string]bool)
	for _, u := range users {
		if seen[u.ID] {
			t.Fatalf("duplicate roster entry for %s", u.ID)
		}
		seen[u.ID] = true
		if !inPalette(u.Color) {
			t.Errorf("user %s color %q not in palette", u.ID, u.Color)
		}
	}
}

func TestApplyChangeLastWriteWinsByArrival(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	if _, err := env.svc.Join(ctx, "s1", "alice", "conn-a"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	before := time.Now().UnixMilli()
	newer := model.CodeChange{ID: "c1", UserID: "conn-a", Timestamp: 2000, Operation: model.OpReplace, Text: "newer"}
	older := model.CodeChange{ID: "c2", UserID: "conn-a", Timestamp: 1000, Operation: model.OpReplace, Text: "older"}

	env.svc.ApplyChange(ctx, "s1", "conn-a", newer)
	env.svc.ApplyChange(ctx, "s1", "conn-a", older)

	state, err := env.sessions.Get(ctx, "s1")
	if err != nil || state == nil {
		t.Fatalf("session missing (err=%v)", err)
	}
	// The later-arriving change wins even though its timestamp is older
	if state.Code != "older" {
		t.Fatalf("code = %q, want the last-applied change to win", state.Code)
	}
	if state.LastUpdated < before {
		t.Errorf("lastUpdated = %d, want application wall-clock time, not change timestamp", state.LastUpdated)
	}
}

func TestApplyChangeIdempotentOnRedelivery(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	if _, err := env.svc.Join(ctx, "s1", "alice", "conn-a"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	change := model.CodeChange{ID: "c1", UserID: "conn-a", Operation: model.OpReplace, Text: "x = 1"}
	env.svc.ApplyChange(ctx, "s1", "conn-a", change)
	env.svc.ApplyChange(ctx, "s1", "conn-a", change)

	state, _ := env.sessions.Get(ctx, "s1")
	if state.Code != "x = 1" {
		t.Fatalf("code = %q after redelivery, want unchanged", state.Code)
	}
	if n := len(env.sent.byEvent(EventCodeChange)); n != 2 {
		t.Fatalf("code-change broadcasts = %d, want 2 (rebroadcast is verbatim)", n)
	}
}

func TestApplyChangeExcludesOriginator(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	if _, err := env.svc.Join(ctx, "s1", "alice", "conn-a"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	env.svc.ApplyChange(ctx, "s1", "conn-a", model.CodeChange{ID: "c1", Operation: model.OpReplace, Text: "v"})

	broadcasts := env.sent.byEvent(EventCodeChange)
	if len(broadcasts) != 1 || broadcasts[0].Except != "conn-a" {
		t.Fatalf("broadcasts = %+v, want one excluding conn-a", broadcasts)
	}
}

func TestMoveCursorStampsAndOverwrites(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	if _, err := env.svc.Join(ctx, "s1", "alice", "conn-a"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// Client-supplied userId must be overridden by the connection identity
	env.svc.MoveCursor(ctx, "s1", "conn-a", model.UserCursor{
		UserID:   "spoofed",
		Username: "alice",
		Position: model.CursorPosition{Line: 1, Column: 1},
	})
	env.svc.MoveCursor(ctx, "s1", "conn-a", model.UserCursor{
		Username: "alice",
		Position: model.CursorPosition{Line: 5, Column: 9},
	})

	cursors, err := env.presence.GetCursors(ctx, "s1")
	if err != nil {
		t.Fatalf("GetCursors: %v", err)
	}
	if len(cursors) != 1 {
		t.Fatalf("cursor table has %d entries for one connection, want 1", len(cursors))
	}
	if cursors[0].UserID != "conn-a" {
		t.Errorf("cursor userId = %q, want conn-a", cursors[0].UserID)
	}
	if cursors[0].Position.Line != 5 || cursors[0].Position.Column != 9 {
		t.Errorf("cursor position = %+v, want the second move", cursors[0].Position)
	}
}

func TestLeaveClearsRosterAndCursors(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	if _, err := env.svc.Join(ctx, "s1", "alice", "conn-a"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := env.svc.Join(ctx, "s1", "bob", "conn-b"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	env.svc.MoveCursor(ctx, "s1", "conn-b", model.UserCursor{Position: model.CursorPosition{Line: 2, Column: 3}})

	env.svc.Leave(ctx, "conn-b")

	users, _ := env.presence.ListUsers(ctx, "s1")
	if len(users) != 1 || users[0].ID != "conn-a" {
		t.Fatalf("roster after leave = %+v, want alice only", users)
	}
	cursors, _ := env.presence.GetCursors(ctx, "s1")
	if len(cursors) != 0 {
		t.Fatalf("cursor table after leave = %+v, want empty", cursors)
	}

	lefts := env.sent.byEvent(EventUserLeft)
	if len(lefts) != 1 || lefts[0].Except != "conn-b" {
		t.Fatalf("user-left broadcasts = %+v, want one excluding conn-b", lefts)
	}
	ref, ok := lefts[0].Payload.(model.UserRef)
	if !ok || ref.UserID != "conn-b" {
		t.Fatalf("user-left payload = %+v, want {userId: conn-b}", lefts[0].Payload)
	}
	if got := env.svc.Sessions("conn-b"); len(got) != 0 {
		t.Fatalf("membership for conn-b after leave = %v, want none", got)
	}
}

func TestLeaveCoversEverySessionJoined(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	if _, err := env.svc.Join(ctx, "s1", "alice", "conn-a"); err != nil {
		t.Fatalf("Join s1: %v", err)
	}
	if _, err := env.svc.Join(ctx, "s2", "alice", "conn-a"); err != nil {
		t.Fatalf("Join s2: %v", err)
	}

	env.svc.Leave(ctx, "conn-a")

	for _, sid := range []string{"s1", "s2"} {
		users, _ := env.presence.ListUsers(ctx, sid)
		if len(users) != 0 {
			t.Errorf("session %s roster after leave = %+v, want empty", sid, users)
		}
	}
	if n := len(env.sent.byEvent(EventUserLeft)); n != 2 {
		t.Fatalf("user-left broadcasts = %d, want one per session", n)
	}
}

// Full end-to-end sequence: alice joins, bob joins, alice edits, bob leaves.
func TestTwoUserSession(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	aliceState, err := env.svc.Join(ctx, "s1", "alice", "conn-a")
	if err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if aliceState.Code != "" || len(aliceState.Users) != 1 {
		t.Fatalf("alice state = %+v, want empty code and [alice]", aliceState)
	}

	bobState, err := env.svc.Join(ctx, "s1", "bob", "conn-b")
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if len(bobState.Users) != 2 {
		t.Fatalf("bob sees %d users, want 2", len(bobState.Users))
	}

	joins := env.sent.byEvent(EventUserJoined)
	if len(joins) != 2 {
		t.Fatalf("user-joined broadcasts = %d, want 2", len(joins))
	}
	bobJoined, ok := joins[1].Payload.(model.User)
	if !ok || bobJoined.ID != "conn-b" || joins[1].Except != "conn-b" {
		t.Fatalf("second user-joined = %+v, want bob broadcast to others", joins[1])
	}

	env.svc.ApplyChange(ctx, "s1", "conn-a", model.CodeChange{
		ID: "c1", UserID: "conn-a", Operation: model.OpReplace, Text: "x=1",
	})
	state, _ := env.sessions.Get(ctx, "s1")
	if state.Code != "x=1" {
		t.Fatalf("store code = %q, want x=1", state.Code)
	}
	changes := env.sent.byEvent(EventCodeChange)
	if len(changes) != 1 || changes[0].Except != "conn-a" {
		t.Fatalf("code-change broadcasts = %+v, want one excluding alice", changes)
	}

	env.svc.Leave(ctx, "conn-b")
	users, _ := env.presence.ListUsers(ctx, "s1")
	if len(users) != 1 || users[0].Username != "alice" {
		t.Fatalf("roster after bob leaves = %+v, want [alice]", users)
	}
}

// --- Failure injection ---

type failingSessionCache struct{ err error }

func (c *failingSessionCache) Get(ctx context.Context, sessionID string) (*model.SessionState, error) {
	return nil, c.err
}
func (c *failingSessionCache) Set(ctx context.Context, state *model.SessionState) error {
	return c.err
}
func (c *failingSessionCache) Delete(ctx context.Context, sessionID string) error {
	return c.err
}

func TestApplyChangeBroadcastsDespiteStoreFailure(t *testing.T) {
	env := newEngineEnv(t, "i1")
	env.svc.sessions = &failingSessionCache{err: errors.New("store down")}
	ctx := context.Background()

	env.svc.ApplyChange(ctx, "s1", "conn-a", model.CodeChange{ID: "c1", Operation: model.OpReplace, Text: "v"})

	if n := len(env.sent.byEvent(EventCodeChange)); n != 1 {
		t.Fatalf("code-change broadcasts = %d, want 1 despite store failure", n)
	}
}

func TestJoinFailsWhenStoreUnavailable(t *testing.T) {
	env := newEngineEnv(t, "i1")
	env.svc.sessions = &failingSessionCache{err: errors.New("store down")}
	ctx := context.Background()

	_, err := env.svc.Join(ctx, "s1", "alice", "conn-a")
	if !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("Join returned %v, want ErrJoinFailed", err)
	}
	if n := len(env.sent.events); n != 0 {
		t.Fatalf("failed join produced %d events, want 0", n)
	}
}

// --- Cross-instance fan-out ---

func TestRemoteChangesReachOtherInstancesOnly(t *testing.T) {
	bk := memory.New()

	envA := newEngineEnv(t, "instance-a")
	envB := newEngineEnv(t, "instance-b")
	envA.svc.broker = bk
	envB.svc.broker = bk

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go envA.svc.ConsumeRemoteChanges(ctx)
	go envB.svc.ConsumeRemoteChanges(ctx)
	time.Sleep(50 * time.Millisecond)

	envA.svc.ApplyChange(ctx, "s1", "conn-a", model.CodeChange{
		ID: "c1", UserID: "conn-a", Operation: model.OpReplace, Text: "remote",
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(envB.sent.byEvent(EventCodeChange)) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := envB.sent.byEvent(EventCodeChange)
	if len(got) != 1 {
		t.Fatalf("instance B rebroadcasts = %d, want 1", len(got))
	}
	change, ok := got[0].Payload.(model.CodeChange)
	if !ok || change.Text != "remote" {
		t.Fatalf("instance B payload = %+v, want the published change", got[0].Payload)
	}

	// Instance A already broadcast locally when it applied the change; its
	// consumer must not echo its own event back
	time.Sleep(100 * time.Millisecond)
	if n := len(envA.sent.byEvent(EventCodeChange)); n != 1 {
		t.Fatalf("instance A code-change broadcasts = %d, want exactly the local one", n)
	}
}

func TestJoinRecordsParticipantAudit(t *testing.T) {
	env := newEngineEnv(t, "i1")
	ctx := context.Background()

	if _, err := env.svc.Join(ctx, "s1", "alice", "conn-a"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// The audit write is async and best-effort; poll for it
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env.parts.mu.Lock()
		n := len(env.parts.upserts)
		env.parts.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("participant audit write never happened")
}
