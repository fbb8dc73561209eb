package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Store is the persistence the manager fronts
type Store interface {
	interfaces.SessionStore
	CreateSession(ctx context.Context, session *types.Session) error
	AddParticipant(ctx context.Context, participant *types.SessionParticipant) error
	ListParticipants(ctx context.Context, sessionID string) ([]*types.SessionParticipant, error)
}

var _ interfaces.SessionStore = (*Manager)(nil)

type participantKey struct {
	sessionID string
	userID    string
}

// Manager creates sessions and memberships and serves the participant
// lookups of the hot path from memory
// ARCHITECTURAL DISCOVERY: Every join and every send checks membership, so
// positive lookups are cached; misses always fall through to the store so a
// membership added elsewhere is seen on the next check
type Manager struct {
	store        Store
	sessions     map[string]*types.Session
	participants map[participantKey]*types.SessionParticipant
	mu           sync.RWMutex
	now          func() time.Time
	logger       *slog.Logger
}

func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:        store,
		sessions:     make(map[string]*types.Session),
		participants: make(map[participantKey]*types.SessionParticipant),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With(slog.String("component", "session")),
	}
}

// CreateSession persists a new active session owned by createdBy, who
// becomes its first admin participant
func (m *Manager) CreateSession(ctx context.Context, title, createdBy string) (*types.Session, error) {
	title = strings.TrimSpace(title)
	if err := types.ValidateTitle(title); err != nil {
		return nil, err
	}
	if !types.IsValidID(createdBy) {
		return nil, ErrInvalidCreatedBy
	}

	now := m.now()
	session := &types.Session{
		ID:           uuid.NewString(),
		Title:        title,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.participants[participantKey{session.ID, createdBy}] = &types.SessionParticipant{
		SessionID: session.ID,
		UserID:    createdBy,
		JoinedAt:  now,
		IsActive:  true,
		IsAdmin:   true,
	}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "session created",
		slog.String("session_id", session.ID),
		slog.String("created_by", createdBy))
	return copySession(session), nil
}

// AddParticipant adds or reactivates a membership in an active session
func (m *Manager) AddParticipant(ctx context.Context, sessionID, userID string, isAdmin bool) (*types.SessionParticipant, error) {
	if !types.IsValidID(sessionID) || !types.IsValidID(userID) {
		return nil, types.ErrInvalidID
	}
	session, err := m.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, ErrSessionInactive
	}

	participant := &types.SessionParticipant{
		SessionID: sessionID,
		UserID:    userID,
		JoinedAt:  m.now(),
		IsActive:  true,
		IsAdmin:   isAdmin,
	}
	if err := m.store.AddParticipant(ctx, participant); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.participants[participantKey{sessionID, userID}] = participant
	m.mu.Unlock()

	cp := *participant
	return &cp, nil
}

// RemoveParticipant deactivates a membership; the record is kept
func (m *Manager) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	current, err := m.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	current.IsActive = false
	if err := m.store.AddParticipant(ctx, current); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.participants, participantKey{sessionID, userID})
	m.mu.Unlock()
	return nil
}

func (m *Manager) ListParticipants(ctx context.Context, sessionID string) ([]*types.SessionParticipant, error) {
	return m.store.ListParticipants(ctx, sessionID)
}

func (m *Manager) GetSessionByID(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	cached, ok := m.sessions[sessionID]
	if ok {
		cached = copySession(cached)
	}
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	session, err := m.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()
	return copySession(session), nil
}

func (m *Manager) GetParticipant(ctx context.Context, sessionID, userID string) (*types.SessionParticipant, error) {
	key := participantKey{sessionID, userID}

	m.mu.RLock()
	cached, ok := m.participants[key]
	m.mu.RUnlock()
	if ok {
		cp := *cached
		return &cp, nil
	}

	participant, err := m.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if participant.IsActive {
		m.mu.Lock()
		m.participants[key] = participant
		m.mu.Unlock()
	}
	cp := *participant
	return &cp, nil
}

// IsParticipant reports an active membership of an active session
func (m *Manager) IsParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	session, err := m.GetSessionByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !session.IsActive {
		return false, nil
	}

	participant, err := m.GetParticipant(ctx, sessionID, userID)
	if errors.Is(err, interfaces.ErrParticipantNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return participant.IsActive, nil
}

// UpdateSessionLastActivity writes through to the store and the cache
func (m *Manager) UpdateSessionLastActivity(ctx context.Context, sessionID string, at time.Time) error {
	if err := m.store.UpdateSessionLastActivity(ctx, sessionID, at); err != nil {
		return err
	}

	m.mu.Lock()
	if session, ok := m.sessions[sessionID]; ok {
		session.LastActivity = at
	}
	m.mu.Unlock()
	return nil
}

func copySession(s *types.Session) *types.Session {
	cp := *s
	return &cp
}
