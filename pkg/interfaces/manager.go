package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// DatabaseManager is the full relational store: collaborator lookups plus the
// record creation used by the HTTP layer and lifecycle hooks
type DatabaseManager interface {
	UserStore
	SessionStore
	MessageStore

	CreateUser(ctx context.Context, user *types.User) error
	UpdateUserPreferences(ctx context.Context, userID string, prefs *types.UserPreferences) error
	CreateSession(ctx context.Context, session *types.Session) error
	AddParticipant(ctx context.Context, participant *types.SessionParticipant) error
	ListParticipants(ctx context.Context, sessionID string) ([]*types.SessionParticipant, error)

	// HealthCheck verifies connectivity and a basic read
	HealthCheck(ctx context.Context) error

	// Close drains pending writes and closes the underlying handle
	Close() error
}
