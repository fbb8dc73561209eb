//go:generate go run go.uber.org/mock/mockgen -source=database.go -destination=../../internal/mocks/mock_database.go -package=mocks
package interfaces

import (
	"context"
	"time"

	"chatrelay/pkg/types"
)

// UserStore is the user lookup consumed by the dispatch pipeline
type UserStore interface {
	// GetUserByID returns ErrUserNotFound when the user does not exist
	GetUserByID(ctx context.Context, userID string) (*types.User, error)

	UpdateUserLastActivity(ctx context.Context, userID string, at time.Time) error
}

// SessionStore is the session and participant lookup consumed by the core
type SessionStore interface {
	// GetSessionByID returns ErrSessionNotFound when the session does not exist
	GetSessionByID(ctx context.Context, sessionID string) (*types.Session, error)

	// GetParticipant returns ErrParticipantNotFound when there is no membership record
	GetParticipant(ctx context.Context, sessionID, userID string) (*types.SessionParticipant, error)

	// IsParticipant reports whether the user holds an active membership
	IsParticipant(ctx context.Context, sessionID, userID string) (bool, error)

	UpdateSessionLastActivity(ctx context.Context, sessionID string, at time.Time) error
}

// MessageStore persists messages. Rows are never physically removed.
// ARCHITECTURAL DISCOVERY: Append-only contract; edits and deletes mutate
// flags in place so concurrent readers never observe a missing row
type MessageStore interface {
	CreateMessage(ctx context.Context, message *types.Message) error

	// GetMessageByID returns soft-deleted messages too
	GetMessageByID(ctx context.Context, messageID string) (*types.Message, error)

	// ListRecentMessages returns at most limit non-deleted messages, newest first
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error)

	// ListSessionMessages returns every message of the session, oldest first
	ListSessionMessages(ctx context.Context, sessionID string) ([]*types.Message, error)

	// GetLastMessage returns the newest non-deleted message or ErrMessageNotFound
	GetLastMessage(ctx context.Context, sessionID string) (*types.Message, error)

	// UpdateMessage rewrites content, hash and edit flags
	UpdateMessage(ctx context.Context, message *types.Message) error

	// SoftDeleteMessage sets the tombstone flag and timestamp
	SoftDeleteMessage(ctx context.Context, messageID string, at time.Time) error
}
