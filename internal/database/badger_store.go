package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

const (
	messagePrefix = "msg:"
	messageIndex  = "msgid:"
	sequenceKey   = "seq:messages"

	sequenceBandwidth = 100
	conflictRetries   = 3
)

var _ interfaces.MessageStore = (*BadgerMessageStore)(nil)

// BadgerMessageStore keeps the message log in Badger. Users, sessions and
// participants stay in SQLite.
// ARCHITECTURAL DISCOVERY: Keys are msg:{session}:{seq}:{id} with a zero
// padded sequence so a prefix scan is already in insertion order, and a
// reverse scan yields newest first without sorting
type BadgerMessageStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
}

// OpenBadgerMessageStore opens a store at path; an empty path selects an
// in-memory database
func OpenBadgerMessageStore(path string, logger *slog.Logger) (*BadgerMessageStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "badger"))

	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{logger})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open message sequence: %w", err)
	}
	return &BadgerMessageStore{db: db, seq: seq, logger: logger}, nil
}

func sessionPrefix(sessionID string) []byte {
	return []byte(messagePrefix + sessionID + ":")
}

func messageKey(sessionID string, seq uint64, messageID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messagePrefix, sessionID, seq, messageID))
}

func indexKey(messageID string) []byte {
	return []byte(messageIndex + messageID)
}

func (s *BadgerMessageStore) CreateMessage(ctx context.Context, message *types.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("%w: failed to allocate sequence: %w", types.ErrPersistence, err)
	}
	value, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: failed to encode message: %w", types.ErrPersistence, err)
	}
	key := messageKey(message.SessionID, seq, message.ID)

	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(indexKey(message.ID)); err == nil {
			return fmt.Errorf("%w: message %s already exists", types.ErrValidation, message.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(indexKey(message.ID), key)
	})
}

func (s *BadgerMessageStore) GetMessageByID(ctx context.Context, messageID string) (*types.Message, error) {
	var message *types.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		message, _, err = loadMessage(txn, messageID)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	return message, nil
}

func (s *BadgerMessageStore) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error) {
	messages := []*types.Message{}
	if limit <= 0 {
		return messages, nil
	}

	prefix := sessionPrefix(sessionID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the largest key not above the seek key
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			message, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			if !message.IsDeleted {
				messages = append(messages, message)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return messages, nil
}

func (s *BadgerMessageStore) ListSessionMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	messages := []*types.Message{}
	prefix := sessionPrefix(sessionID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			message, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return messages, nil
}

func (s *BadgerMessageStore) GetLastMessage(ctx context.Context, sessionID string) (*types.Message, error) {
	messages, err := s.ListRecentMessages(ctx, sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, interfaces.ErrMessageNotFound
	}
	return messages[0], nil
}

func (s *BadgerMessageStore) UpdateMessage(ctx context.Context, message *types.Message) error {
	return s.mutate(ctx, message.ID, func(stored *types.Message) {
		stored.Content = message.Content
		stored.ContentHash = message.ContentHash
		stored.IsEdited = message.IsEdited
		stored.EditedAt = message.EditedAt
	})
}

func (s *BadgerMessageStore) SoftDeleteMessage(ctx context.Context, messageID string, at time.Time) error {
	return s.mutate(ctx, messageID, func(stored *types.Message) {
		deletedAt := at.UTC()
		stored.IsDeleted = true
		stored.DeletedAt = &deletedAt
	})
}

// Close releases the sequence lease and closes the database
func (s *BadgerMessageStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("failed to release message sequence", slog.Any("error", err))
	}
	return s.db.Close()
}

// mutate rewrites one stored message in place under its primary key
func (s *BadgerMessageStore) mutate(ctx context.Context, messageID string, change func(*types.Message)) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		message, key, err := loadMessage(txn, messageID)
		if err != nil {
			return err
		}
		change(message)
		value, err := json.Marshal(message)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
}

// update runs fn in a read-write transaction, retrying optimistic conflicts
func (s *BadgerMessageStore) update(ctx context.Context, fn func(*badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.Debug("badger transaction conflict, retrying", slog.Int("attempt", attempt+1))
	}
	return storeError(err)
}

func loadMessage(txn *badger.Txn, messageID string) (*types.Message, []byte, error) {
	ref, err := txn.Get(indexKey(messageID))
	if err != nil {
		return nil, nil, err
	}
	key, err := ref.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}
	item, err := txn.Get(key)
	if err != nil {
		return nil, nil, err
	}
	message, err := decodeItem(item)
	return message, key, err
}

func decodeItem(item *badger.Item) (*types.Message, error) {
	var message types.Message
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &message)
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// storeError keeps taxonomy errors and maps everything else to ErrPersistence
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return interfaces.ErrMessageNotFound
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrNotFound),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", types.ErrPersistence, err)
	}
}

// badgerLogger routes badger's printf-style logging into slog
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
