package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
)

var ErrSchemaMismatch = errors.New("database schema mismatch")

// SchemaValidator checks a migrated database against the structure the
// stores expect
type SchemaValidator struct {
	db *sql.DB
}

func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// RequiredTables are the tables created by the migrations
var RequiredTables = []string{
	"users",
	"user_preferences",
	"sessions",
	"session_participants",
	"messages",
	"schema_migrations",
}

// RequiredIndexes back the recent-message and participant lookups
var RequiredIndexes = []string{
	"idx_sessions_active",
	"idx_participants_user",
	"idx_messages_session_seq",
	"idx_messages_parent",
}

// Validate runs every check and reports the first failure
func (v *SchemaValidator) Validate(ctx context.Context) error {
	checks := []func(context.Context) error{
		v.ValidateTablesExist,
		v.ValidateTableStructure,
		v.ValidateIndexes,
	}
	for _, check := range checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (v *SchemaValidator) ValidateTablesExist(ctx context.Context) error {
	for _, table := range RequiredTables {
		exists, err := v.objectExists(ctx, "table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("%w: required table %s does not exist", ErrSchemaMismatch, table)
		}
	}
	return nil
}

// ValidateTableStructure verifies the columns the stores scan into
func (v *SchemaValidator) ValidateTableStructure(ctx context.Context) error {
	expected := map[string]map[string]string{
		"users": {
			"id":            "TEXT",
			"username":      "TEXT",
			"display_name":  "TEXT",
			"created_at":    "DATETIME",
			"last_activity": "DATETIME",
		},
		"sessions": {
			"id":            "TEXT",
			"title":         "TEXT",
			"created_by":    "TEXT",
			"created_at":    "DATETIME",
			"last_activity": "DATETIME",
			"is_active":     "INTEGER",
		},
		"session_participants": {
			"session_id": "TEXT",
			"user_id":    "TEXT",
			"joined_at":  "DATETIME",
			"is_active":  "INTEGER",
			"is_admin":   "INTEGER",
		},
		"messages": {
			"id":                "TEXT",
			"session_id":        "TEXT",
			"user_id":           "TEXT",
			"content":           "TEXT",
			"timestamp":         "DATETIME",
			"seq":               "INTEGER",
			"from_ai":           "INTEGER",
			"parent_message_id": "TEXT",
			"ai_provider":       "TEXT",
			"ai_model":          "TEXT",
			"is_deleted":        "INTEGER",
			"deleted_at":        "DATETIME",
			"content_hash":      "TEXT",
		},
	}

	tables := lo.Keys(expected)
	sort.Strings(tables)
	for _, table := range tables {
		if err := v.validateColumns(ctx, table, expected[table]); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}
	return nil
}

func (v *SchemaValidator) ValidateIndexes(ctx context.Context) error {
	for _, index := range RequiredIndexes {
		exists, err := v.objectExists(ctx, "index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("%w: required index %s does not exist", ErrSchemaMismatch, index)
		}
	}
	return nil
}

func (v *SchemaValidator) objectExists(ctx context.Context, kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(ctx context.Context, table string, expected map[string]string) error {
	// table names come from the fixed map above
	rows, err := v.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue interface{}
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	columns := lo.Keys(expected)
	sort.Strings(columns)
	for _, column := range columns {
		foundType, ok := found[column]
		if !ok {
			return fmt.Errorf("%w: column %s not found", ErrSchemaMismatch, column)
		}
		if foundType != expected[column] {
			return fmt.Errorf("%w: column %s has type %s, expected %s", ErrSchemaMismatch, column, foundType, expected[column])
		}
	}
	return nil
}
