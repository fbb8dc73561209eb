package interfaces_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"chatrelay/internal/broadcast"
	"chatrelay/internal/database"
	"chatrelay/internal/typing"
	"chatrelay/internal/websocket"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// ARCHITECTURAL VALIDATION TEST: Concrete components satisfy the collaborator contracts
var (
	_ interfaces.DatabaseManager = (*database.Manager)(nil)
	_ interfaces.MessageStore    = (*database.BadgerMessageStore)(nil)
	_ interfaces.Broadcaster     = (*broadcast.Broadcaster)(nil)
	_ interfaces.TypingStopper   = (*typing.Coordinator)(nil)
	_ interfaces.Connection      = (*websocket.Connection)(nil)
)

// FUNCTIONAL VALIDATION TEST: Collaborator errors classify under the shared taxonomy
func TestErrors_WrapTaxonomy(t *testing.T) {
	for name, err := range map[string]error{
		"user":        interfaces.ErrUserNotFound,
		"session":     interfaces.ErrSessionNotFound,
		"message":     interfaces.ErrMessageNotFound,
		"participant": interfaces.ErrParticipantNotFound,
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, err, types.ErrNotFound)
			assert.NotErrorIs(t, err, types.ErrPersistence)
			assert.Contains(t, err.Error(), name)
		})
	}

	assert.ErrorIs(t, interfaces.ErrStoreClosed, types.ErrPersistence)
	assert.False(t, errors.Is(interfaces.ErrStoreClosed, types.ErrNotFound))
}
