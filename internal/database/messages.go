package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

const messageColumns = `id, session_id, user_id, username, content, timestamp, from_ai,
	parent_message_id, ai_provider, ai_model, tokens_used, temperature, ai_context,
	is_edited, edited_at, is_deleted, deleted_at, content_hash`

// CreateMessage appends a message. seq is assigned inside the writer so
// rows with equal timestamps still have a total order per session.
func (m *Manager) CreateMessage(ctx context.Context, message *types.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	var provider sql.NullString
	if message.AIProvider != nil {
		provider = sql.NullString{String: message.AIProvider.String(), Valid: true}
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (`+messageColumns+`, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
				(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?))
		`,
			message.ID,
			message.SessionID,
			message.UserID,
			message.Username,
			message.Content,
			message.Timestamp.UTC(),
			message.FromAI,
			message.ParentMessageID,
			provider,
			message.AIModel,
			message.TokensUsed,
			message.Temperature,
			message.AIContext,
			message.IsEdited,
			utcPtr(message.EditedAt),
			message.IsDeleted,
			utcPtr(message.DeletedAt),
			message.ContentHash,
			message.SessionID,
		)
		if err != nil {
			if isForeignKey(err) {
				return interfaces.ErrSessionNotFound
			}
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetMessageByID(ctx context.Context, messageID string) (*types.Message, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", messageID)
	message, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrMessageNotFound
		}
		return nil, fmt.Errorf("%w: failed to query message: %w", types.ErrPersistence, err)
	}
	return message, nil
}

// ListRecentMessages returns at most limit non-deleted messages, newest first
func (m *Manager) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		return []*types.Message{}, nil
	}
	return m.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE session_id = ? AND is_deleted = 0
		ORDER BY seq DESC
		LIMIT ?
	`, sessionID, limit)
}

// ListSessionMessages returns every message including tombstones, oldest first
func (m *Manager) ListSessionMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	return m.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
}

func (m *Manager) GetLastMessage(ctx context.Context, sessionID string) (*types.Message, error) {
	messages, err := m.ListRecentMessages(ctx, sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, interfaces.ErrMessageNotFound
	}
	return messages[0], nil
}

// UpdateMessage rewrites content, hash and edit flags
func (m *Manager) UpdateMessage(ctx context.Context, message *types.Message) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		return execOne(ctx, db, interfaces.ErrMessageNotFound, `
			UPDATE messages
			SET content = ?, content_hash = ?, is_edited = ?, edited_at = ?
			WHERE id = ?
		`, message.Content, message.ContentHash, message.IsEdited, utcPtr(message.EditedAt), message.ID)
	})
}

func (m *Manager) SoftDeleteMessage(ctx context.Context, messageID string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		return execOne(ctx, db, interfaces.ErrMessageNotFound,
			"UPDATE messages SET is_deleted = 1, deleted_at = ? WHERE id = ?", at.UTC(), messageID)
	})
}

func (m *Manager) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*types.Message, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query messages: %w", types.ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*types.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan message row: %w", types.ErrPersistence, err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating message rows: %w", types.ErrPersistence, err)
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*types.Message, error) {
	var (
		message     types.Message
		parentID    sql.NullString
		provider    sql.NullString
		model       sql.NullString
		tokens      sql.NullInt64
		temperature sql.NullFloat64
		aiContext   sql.NullString
		editedAt    sql.NullTime
		deletedAt   sql.NullTime
	)
	err := row.Scan(
		&message.ID,
		&message.SessionID,
		&message.UserID,
		&message.Username,
		&message.Content,
		&message.Timestamp,
		&message.FromAI,
		&parentID,
		&provider,
		&model,
		&tokens,
		&temperature,
		&aiContext,
		&message.IsEdited,
		&editedAt,
		&message.IsDeleted,
		&deletedAt,
		&message.ContentHash,
	)
	if err != nil {
		return nil, err
	}

	// FUNCTIONAL DISCOVERY: Nullable columns map onto the optional pointer fields
	if parentID.Valid {
		message.ParentMessageID = &parentID.String
	}
	if provider.Valid {
		p, err := types.ParseProvider(provider.String)
		if err != nil {
			return nil, err
		}
		message.AIProvider = &p
	}
	if model.Valid {
		message.AIModel = &model.String
	}
	if tokens.Valid {
		n := int(tokens.Int64)
		message.TokensUsed = &n
	}
	if temperature.Valid {
		message.Temperature = &temperature.Float64
	}
	if aiContext.Valid {
		message.AIContext = &aiContext.String
	}
	if editedAt.Valid {
		message.EditedAt = &editedAt.Time
	}
	if deletedAt.Valid {
		message.DeletedAt = &deletedAt.Time
	}
	return &message, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
