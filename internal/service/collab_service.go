package service

import (
	"codecollab/internal/broker"
	"codecollab/internal/cache"
	"codecollab/internal/model"
	"codecollab/internal/repository"
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	// ErrInvalidRequest means a join carried an empty session id or
	// username. Surfaced to the sender only, never broadcast.
	ErrInvalidRequest = errors.New("sessionId and username are required")

	// ErrJoinFailed wraps store failures during join
	ErrJoinFailed = errors.New("failed to join session")
)

// DefaultLanguage is the syntax tag for sessions with no durable record
const DefaultLanguage = "javascript"

// CollabService is the per-connection synchronization engine. It applies
// join/change/cursor/leave events to the shared session store, persists
// buffer changes behind the store, and fans events out to local connections
// and (through the broker) to other instances.
//
// The service owns no session state of its own beyond the connection-to-
// session membership map; the store is the single authoritative copy.
type CollabService struct {
	sessions     cache.SessionCache
	presence     cache.PresenceCache
	sessionRepo  repository.SessionRepo
	participants repository.ParticipantRepo
	broker       broker.Broker
	broadcaster  Broadcaster
	instanceID   string

	mu    sync.Mutex
	rooms map[string]map[string]struct{} // connID -> session ids joined
}

// NewCollabService creates a new collaboration engine
func NewCollabService(
	sessions cache.SessionCache,
	presence cache.PresenceCache,
	sessionRepo repository.SessionRepo,
	participants repository.ParticipantRepo,
	bk broker.Broker,
	instanceID string,
) *CollabService {
	return &CollabService{
		sessions:     sessions,
		presence:     presence,
		sessionRepo:  sessionRepo,
		participants: participants,
		broker:       bk,
		instanceID:   instanceID,
		rooms:        make(map[string]map[string]struct{}),
	}
}

// SetBroadcaster injects the transport-side fan-out (the ws hub)
func (s *CollabService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Join registers connID as a participant of sessionID, lazily creating the
// session in the store (seeded from the durable record when one exists).
// The full session state goes to the joining connection; everyone else in
// the session gets a user-joined event.
func (s *CollabService) Join(ctx context.Context, sessionID, username, connID string) (*model.SessionState, error) {
	if sessionID == "" || username == "" {
		return nil, ErrInvalidRequest
	}

	user := model.User{
		ID:       connID,
		Username: username,
		Color:    model.RandomColor(),
	}

	if err := s.presence.AddUser(ctx, sessionID, &user); err != nil {
		log.Printf("join %s: add user: %v", sessionID, err)
		return nil, ErrJoinFailed
	}

	state, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Printf("join %s: get session: %v", sessionID, err)
		return nil, ErrJoinFailed
	}

	if state == nil {
		state = s.seedSession(ctx, sessionID)
		state.Users = []model.User{user}
	} else {
		users, err := s.presence.ListUsers(ctx, sessionID)
		if err != nil {
			log.Printf("join %s: list users: %v", sessionID, err)
			return nil, ErrJoinFailed
		}
		state.Users = users
	}

	// Cursor table is best-effort: a missing read degrades the initial
	// render, not correctness
	if cursors, err := s.presence.GetCursors(ctx, sessionID); err != nil {
		log.Printf("join %s: get cursors: %v", sessionID, err)
	} else {
		state.Cursors = cursors
	}

	if err := s.sessions.Set(ctx, state); err != nil {
		log.Printf("join %s: set session: %v", sessionID, err)
		return nil, ErrJoinFailed
	}

	s.track(connID, sessionID)

	s.broadcaster.SendToConnection(sessionID, connID, EventSessionState, state)
	s.broadcaster.BroadcastToOthers(sessionID, connID, EventUserJoined, user)

	// Audit write, off the synchronization path
	go func() {
		p := &model.Participant{
			SessionID: sessionID,
			UserID:    connID,
			Username:  username,
			LastSeen:  time.Now().UnixMilli(),
		}
		if err := s.participants.UpsertSeen(context.Background(), p); err != nil {
			log.Printf("join %s: participant upsert: %v", sessionID, err)
		}
	}()

	return state, nil
}

// seedSession builds fresh session state, preferring a durable record over
// defaults. A failed durable read falls back to defaults; it never fails
// the join.
func (s *CollabService) seedSession(ctx context.Context, sessionID string) *model.SessionState {
	state := &model.SessionState{
		SessionID:   sessionID,
		Language:    DefaultLanguage,
		LastUpdated: time.Now().UnixMilli(),
	}
	record, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		log.Printf("join %s: durable lookup: %v", sessionID, err)
		return state
	}
	if record != nil {
		state.Code = record.Code
		if record.Language != "" {
			state.Language = record.Language
		}
	}
	return state
}

// ApplyChange overwrites the session buffer with the change text.
// Last-write-wins by arrival order: no comparison against the change's own
// timestamp or the stored lastUpdated. Store and broker failures are logged
// and swallowed; the local rebroadcast happens regardless.
func (s *CollabService) ApplyChange(ctx context.Context, sessionID, connID string, change model.CodeChange) {
	state, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Printf("change %s: get session: %v", sessionID, err)
	} else if state != nil {
		state.Code = change.Text
		state.LastUpdated = time.Now().UnixMilli()
		if err := s.sessions.Set(ctx, state); err != nil {
			log.Printf("change %s: set session: %v", sessionID, err)
		}
	}

	ev := broker.ChangeEvent{
		InstanceID: s.instanceID,
		SessionID:  sessionID,
		Change:     change,
	}
	if err := s.broker.PublishCodeChange(ctx, ev); err != nil {
		log.Printf("change %s: broker publish: %v", sessionID, err)
	}

	// The originator already applied the change locally
	s.broadcaster.BroadcastToOthers(sessionID, connID, EventCodeChange, change)

	go func() {
		err := s.sessionRepo.UpsertCode(context.Background(), sessionID, change.Text, time.Now().UnixMilli())
		if err != nil {
			log.Printf("change %s: durable upsert: %v", sessionID, err)
		}
	}()
}

// MoveCursor stamps the cursor with the connection identity, stores it, and
// rebroadcasts. Positions are not validated against the buffer;
// out-of-range cursors are forwarded as-is.
func (s *CollabService) MoveCursor(ctx context.Context, sessionID, connID string, cursor model.UserCursor) {
	cursor.UserID = connID

	if err := s.presence.SetCursor(ctx, sessionID, &cursor); err != nil {
		log.Printf("cursor %s: set cursor: %v", sessionID, err)
	}

	s.broadcaster.BroadcastToOthers(sessionID, connID, EventCursorMove, cursor)
}

// Leave removes the connection from every session it joined: roster entry,
// cursor entry, and a user-left broadcast to whoever remains. Called on
// connection close, expected or abrupt.
func (s *CollabService) Leave(ctx context.Context, connID string) {
	s.mu.Lock()
	joined := s.rooms[connID]
	delete(s.rooms, connID)
	s.mu.Unlock()

	for sessionID := range joined {
		if err := s.presence.RemoveUser(ctx, sessionID, connID); err != nil {
			log.Printf("leave %s: remove user: %v", sessionID, err)
		}
		if err := s.presence.RemoveCursor(ctx, sessionID, connID); err != nil {
			log.Printf("leave %s: remove cursor: %v", sessionID, err)
		}
		s.broadcaster.BroadcastToOthers(sessionID, connID, EventUserLeft, model.UserRef{UserID: connID})
	}

	if len(joined) > 0 {
		go func() {
			if err := s.participants.TouchSeen(context.Background(), connID, time.Now().UnixMilli()); err != nil {
				log.Printf("leave: participant touch: %v", err)
			}
		}()
	}
}

// ConsumeRemoteChanges blocks, rebroadcasting changes published by other
// instances to this instance's local connections. Events this instance
// published are skipped; at-least-once redelivery is harmless because
// re-sending the same whole-buffer change is a no-op for receivers.
func (s *CollabService) ConsumeRemoteChanges(ctx context.Context) error {
	return s.broker.ConsumeCodeChanges(ctx, func(ctx context.Context, ev broker.ChangeEvent) {
		if ev.InstanceID == s.instanceID {
			return
		}
		s.broadcaster.BroadcastToOthers(ev.SessionID, ev.Change.UserID, EventCodeChange, ev.Change)
	})
}

// Sessions returns the session ids a connection has joined, for tests and
// diagnostics
func (s *CollabService) Sessions(connID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rooms[connID]))
	for id := range s.rooms[connID] {
		ids = append(ids, id)
	}
	return ids
}

func (s *CollabService) track(connID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[connID] == nil {
		s.rooms[connID] = make(map[string]struct{})
	}
	s.rooms[connID][sessionID] = struct{}{}
}
