package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	dbconfig "chatrelay/pkg/database"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// DefaultRetryDelay is the pause before the single retry of a busy write
const DefaultRetryDelay = 5 * time.Second

var _ interfaces.DatabaseManager = (*Manager)(nil)

// Manager is the SQLite implementation of interfaces.DatabaseManager
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
	logger       *slog.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the embedded migrations and starts
// the writer goroutine
func NewManager(ctx context.Context, config *dbconfig.Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, err
	}

	if err := dbconfig.NewMigrationManager(db, nil).ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   DefaultRetryDelay,
		logger:       logger.With(slog.String("component", "database")),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			// FUNCTIONAL DISCOVERY: Only lock contention is worth one retry;
			// constraint failures would fail again
			if isBusy(err) {
				m.logger.Warn("database busy, retrying write", slog.Duration("delay", m.retryDelay), slog.Any("error", err))
				select {
				case <-time.After(m.retryDelay):
					err = op.operation(m.db)
				case <-m.shutdown:
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug("database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write and waits for its result
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timeout := time.NewTimer(m.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timeout.C:
		return fmt.Errorf("%w: write operation timeout", types.ErrPersistence)
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}

	// Once queued the operation runs to completion
	return <-result
}

func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	if err := types.ValidateUsername(user.Username); err != nil {
		return err
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, username, display_name, created_at, last_activity)
			VALUES (?, ?, ?, ?, ?)
		`, user.ID, user.Username, user.DisplayName, user.CreatedAt.UTC(), user.LastActivity.UTC())
		if err != nil {
			if isUnique(err) {
				return ErrDuplicateUsername
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}

		if user.Preferences != nil {
			if err := upsertPreferences(ctx, tx, user.ID, user.Preferences); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (m *Manager) GetUserByID(ctx context.Context, userID string) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.display_name, u.created_at, u.last_activity,
		       p.user_id, p.preferred_provider, p.preferred_model, p.temperature, p.max_tokens, p.system_prompt
		FROM users u
		LEFT JOIN user_preferences p ON p.user_id = u.id
		WHERE u.id = ?
	`, userID)

	var (
		user         types.User
		prefOwner    sql.NullString
		provider     sql.NullString
		model        sql.NullString
		temperature  sql.NullFloat64
		maxTokens    sql.NullInt64
		systemPrompt sql.NullString
	)
	err := row.Scan(&user.ID, &user.Username, &user.DisplayName, &user.CreatedAt, &user.LastActivity,
		&prefOwner, &provider, &model, &temperature, &maxTokens, &systemPrompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: failed to query user: %w", types.ErrPersistence, err)
	}

	if prefOwner.Valid {
		prefs := &types.UserPreferences{
			PreferredModel: model.String,
			SystemPrompt:   systemPrompt.String,
		}
		if provider.Valid {
			if p, err := types.ParseProvider(provider.String); err == nil {
				prefs.PreferredProvider = &p
			}
		}
		if temperature.Valid {
			prefs.Temperature = &temperature.Float64
		}
		if maxTokens.Valid {
			n := int(maxTokens.Int64)
			prefs.MaxTokens = &n
		}
		user.Preferences = prefs
	}
	return &user, nil
}

func (m *Manager) UpdateUserLastActivity(ctx context.Context, userID string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		return execOne(ctx, db, interfaces.ErrUserNotFound,
			"UPDATE users SET last_activity = ? WHERE id = ?", at.UTC(), userID)
	})
}

func (m *Manager) UpdateUserPreferences(ctx context.Context, userID string, prefs *types.UserPreferences) error {
	if prefs == nil {
		return fmt.Errorf("%w: preferences cannot be nil", types.ErrValidation)
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", userID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return interfaces.ErrUserNotFound
		}
		if err := upsertPreferences(ctx, tx, userID, prefs); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func upsertPreferences(ctx context.Context, tx *sql.Tx, userID string, prefs *types.UserPreferences) error {
	var provider sql.NullString
	if prefs.PreferredProvider != nil && prefs.PreferredProvider.IsValid() {
		provider = sql.NullString{String: prefs.PreferredProvider.String(), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, preferred_provider, preferred_model, temperature, max_tokens, system_prompt)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferred_provider = excluded.preferred_provider,
			preferred_model = excluded.preferred_model,
			temperature = excluded.temperature,
			max_tokens = excluded.max_tokens,
			system_prompt = excluded.system_prompt
	`, userID, provider, prefs.PreferredModel, prefs.Temperature, prefs.MaxTokens, prefs.SystemPrompt)
	if err != nil {
		return fmt.Errorf("failed to store preferences: %w", err)
	}
	return nil
}

// CreateSession inserts the session and makes its creator an admin participant
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	if err := types.ValidateTitle(session.Title); err != nil {
		return err
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (id, title, created_by, created_at, last_activity, is_active)
			VALUES (?, ?, ?, ?, ?, ?)
		`, session.ID, session.Title, session.CreatedBy, session.CreatedAt.UTC(), session.LastActivity.UTC(), session.IsActive)
		if err != nil {
			if isForeignKey(err) {
				return interfaces.ErrUserNotFound
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_participants (session_id, user_id, joined_at, is_active, is_admin)
			VALUES (?, ?, ?, 1, 1)
		`, session.ID, session.CreatedBy, session.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert session creator: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session creation: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetSessionByID(ctx context.Context, sessionID string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, title, created_by, created_at, last_activity, is_active
		FROM sessions
		WHERE id = ?
	`, sessionID)

	var session types.Session
	err := row.Scan(&session.ID, &session.Title, &session.CreatedBy, &session.CreatedAt, &session.LastActivity, &session.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: failed to query session: %w", types.ErrPersistence, err)
	}
	return &session, nil
}

func (m *Manager) UpdateSessionLastActivity(ctx context.Context, sessionID string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		return execOne(ctx, db, interfaces.ErrSessionNotFound,
			"UPDATE sessions SET last_activity = ? WHERE id = ?", at.UTC(), sessionID)
	})
}

// AddParticipant inserts a membership or reactivates an existing one
func (m *Manager) AddParticipant(ctx context.Context, participant *types.SessionParticipant) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO session_participants (session_id, user_id, joined_at, is_active, is_admin)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id, user_id) DO UPDATE SET
				is_active = excluded.is_active,
				is_admin = excluded.is_admin
		`, participant.SessionID, participant.UserID, participant.JoinedAt.UTC(), participant.IsActive, participant.IsAdmin)
		if err != nil {
			if isForeignKey(err) {
				return fmt.Errorf("%w: session or user does not exist", types.ErrNotFound)
			}
			return fmt.Errorf("failed to insert participant: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetParticipant(ctx context.Context, sessionID, userID string) (*types.SessionParticipant, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, joined_at, is_active, is_admin
		FROM session_participants
		WHERE session_id = ? AND user_id = ?
	`, sessionID, userID)

	var p types.SessionParticipant
	if err := row.Scan(&p.SessionID, &p.UserID, &p.JoinedAt, &p.IsActive, &p.IsAdmin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("%w: failed to query participant: %w", types.ErrPersistence, err)
	}
	return &p, nil
}

func (m *Manager) IsParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	p, err := m.GetParticipant(ctx, sessionID, userID)
	if errors.Is(err, interfaces.ErrParticipantNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsActive, nil
}

// ListParticipants returns memberships in join order
func (m *Manager) ListParticipants(ctx context.Context, sessionID string) ([]*types.SessionParticipant, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT session_id, user_id, joined_at, is_active, is_admin
		FROM session_participants
		WHERE session_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query participants: %w", types.ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var participants []*types.SessionParticipant
	for rows.Next() {
		var p types.SessionParticipant
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.JoinedAt, &p.IsActive, &p.IsAdmin); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, &p)
	}
	return participants, rows.Err()
}

func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// DB exposes the handle for maintenance tooling
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close drains the writer and closes the handle. Repeated calls are no-ops.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// execOne runs a single-row update and reports notFound when no row matched
func execOne(ctx context.Context, db *sql.DB, notFound error, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrPersistence, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func sqliteCode(err error) (sqlite3.ErrNoExtended, bool) {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode, true
	}
	return 0, false
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

func isUnique(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.ErrConstraintUnique || code == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKey(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlite3.ErrConstraintForeignKey
}
