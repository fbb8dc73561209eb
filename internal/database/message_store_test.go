package database

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

type storeFixture struct {
	store   interfaces.MessageStore
	session string
	user    string
}

// Both backends must satisfy the same message log contract
func messageStores(t *testing.T) map[string]func(t *testing.T) storeFixture {
	return map[string]func(t *testing.T) storeFixture{
		"sqlite": func(t *testing.T) storeFixture {
			m := setupTestDB(t)
			alice := seedUser(t, m, "alice")
			session := seedSession(t, m, alice)
			return storeFixture{store: m, session: session.ID, user: alice.ID}
		},
		"badger": func(t *testing.T) storeFixture {
			s, err := OpenBadgerMessageStore("", slog.New(slog.DiscardHandler))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return storeFixture{store: s, session: uuid.NewString(), user: uuid.NewString()}
		},
	}
}

func createMessages(t *testing.T, f storeFixture, n int) []*types.Message {
	t.Helper()
	// Equal timestamps: ordering must come from insertion order
	at := time.Now().UTC().Truncate(time.Second)
	messages := make([]*types.Message, 0, n)
	for i := 0; i < n; i++ {
		m := humanMessage(f.session, f.user, fmt.Sprintf("message %d", i), at)
		require.NoError(t, f.store.CreateMessage(context.Background(), m))
		messages = append(messages, m)
	}
	return messages
}

func ids(messages []*types.Message) []string {
	return lo.Map(messages, func(m *types.Message, _ int) string { return m.ID })
}

func TestMessageStore_RecentIsNewestFirstAndBounded(t *testing.T) {
	for name, open := range messageStores(t) {
		t.Run(name, func(t *testing.T) {
			f := open(t)
			ctx := context.Background()
			created := createMessages(t, f, 5)

			recent, err := f.store.ListRecentMessages(ctx, f.session, 3)
			require.NoError(t, err)
			assert.Equal(t, []string{created[4].ID, created[3].ID, created[2].ID}, ids(recent))

			all, err := f.store.ListRecentMessages(ctx, f.session, 50)
			require.NoError(t, err)
			assert.Len(t, all, 5)

			none, err := f.store.ListRecentMessages(ctx, f.session, 0)
			require.NoError(t, err)
			assert.Empty(t, none)

			other, err := f.store.ListRecentMessages(ctx, uuid.NewString(), 10)
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestMessageStore_SoftDeleteKeepsRow(t *testing.T) {
	for name, open := range messageStores(t) {
		t.Run(name, func(t *testing.T) {
			f := open(t)
			ctx := context.Background()
			created := createMessages(t, f, 3)
			deletedAt := time.Now().UTC()

			require.NoError(t, f.store.SoftDeleteMessage(ctx, created[2].ID, deletedAt))

			got, err := f.store.GetMessageByID(ctx, created[2].ID)
			require.NoError(t, err)
			assert.True(t, got.IsDeleted)
			require.NotNil(t, got.DeletedAt)
			assert.WithinDuration(t, deletedAt, *got.DeletedAt, time.Millisecond)

			recent, err := f.store.ListRecentMessages(ctx, f.session, 2)
			require.NoError(t, err)
			assert.Equal(t, []string{created[1].ID, created[0].ID}, ids(recent))

			last, err := f.store.GetLastMessage(ctx, f.session)
			require.NoError(t, err)
			assert.Equal(t, created[1].ID, last.ID)

			all, err := f.store.ListSessionMessages(ctx, f.session)
			require.NoError(t, err)
			assert.Equal(t, ids(created), ids(all), "tombstones stay in the full history")
		})
	}
}

func TestMessageStore_UpdateMessage(t *testing.T) {
	for name, open := range messageStores(t) {
		t.Run(name, func(t *testing.T) {
			f := open(t)
			ctx := context.Background()
			created := createMessages(t, f, 1)

			editedAt := time.Now().UTC()
			edit := *created[0]
			edit.Content = "edited"
			edit.ContentHash = "fedcba9876543210"
			edit.IsEdited = true
			edit.EditedAt = &editedAt
			require.NoError(t, f.store.UpdateMessage(ctx, &edit))

			got, err := f.store.GetMessageByID(ctx, edit.ID)
			require.NoError(t, err)
			assert.Equal(t, "edited", got.Content)
			assert.Equal(t, "fedcba9876543210", got.ContentHash)
			assert.True(t, got.IsEdited)
			require.NotNil(t, got.EditedAt)
		})
	}
}

func TestMessageStore_NotFound(t *testing.T) {
	for name, open := range messageStores(t) {
		t.Run(name, func(t *testing.T) {
			f := open(t)
			ctx := context.Background()
			missing := uuid.NewString()

			_, err := f.store.GetMessageByID(ctx, missing)
			assert.ErrorIs(t, err, interfaces.ErrMessageNotFound)

			_, err = f.store.GetLastMessage(ctx, f.session)
			assert.ErrorIs(t, err, types.ErrNotFound)

			assert.ErrorIs(t, f.store.SoftDeleteMessage(ctx, missing, time.Now()), types.ErrNotFound)
			assert.ErrorIs(t, f.store.UpdateMessage(ctx, &types.Message{ID: missing}), types.ErrNotFound)
		})
	}
}

func TestMessageStore_RejectsInvalidMessage(t *testing.T) {
	for name, open := range messageStores(t) {
		t.Run(name, func(t *testing.T) {
			f := open(t)
			m := humanMessage(f.session, f.user, "Hello", time.Now())
			m.AIProvider = lo.ToPtr(types.ProviderMock)

			assert.ErrorIs(t, f.store.CreateMessage(context.Background(), m), types.ErrAIFieldsMismatch)
		})
	}
}

func TestBadgerMessageStore_DuplicateIDAndPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenBadgerMessageStore(dir, nil)
	require.NoError(t, err)
	session := uuid.NewString()
	m := humanMessage(session, uuid.NewString(), "Hello", time.Now().UTC())
	require.NoError(t, store.CreateMessage(ctx, m))
	assert.ErrorIs(t, store.CreateMessage(ctx, m), types.ErrValidation)
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerMessageStore(dir, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	next := humanMessage(session, m.UserID, "Again", time.Now().UTC())
	require.NoError(t, reopened.CreateMessage(ctx, next))

	recent, err := reopened.ListRecentMessages(ctx, session, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{next.ID, m.ID}, ids(recent), "sequence continues across restarts")
}
