package service

import (
	"codecollab/internal/cache"
	"codecollab/internal/model"
	"codecollab/internal/repository"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionService backs the landing-page REST surface: create a session to
// share its id, look one up before joining. The live sync path never goes
// through here.
type SessionService struct {
	sessionRepo repository.SessionRepo
	sessions    cache.SessionCache
}

// NewSessionService creates a new session service
func NewSessionService(sessionRepo repository.SessionRepo, sessions cache.SessionCache) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		sessions:    sessions,
	}
}

// CreateSession persists a new empty session and returns its record
func (s *SessionService) CreateSession(ctx context.Context, language string) (*model.SessionRecord, error) {
	if language == "" {
		language = DefaultLanguage
	}

	record := &model.SessionRecord{
		ID:        uuid.New().String(),
		Language:  language,
		UpdatedAt: time.Now().UnixMilli(),
	}
	if err := s.sessionRepo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return record, nil
}

// GetSession returns the live state when the session is active, else the
// durable record lifted into an empty state, else nil
func (s *SessionService) GetSession(ctx context.Context, id string) (*model.SessionState, error) {
	state, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if state != nil {
		return state, nil
	}

	record, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return &model.SessionState{
		SessionID:   record.ID,
		Code:        record.Code,
		Language:    record.Language,
		Users:       []model.User{},
		Cursors:     []model.UserCursor{},
		LastUpdated: record.UpdatedAt,
	}, nil
}
