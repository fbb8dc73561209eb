package interfaces

import (
	"errors"
	"fmt"

	"chatrelay/pkg/types"
)

// Common collaborator errors; each wraps the matching taxonomy sentinel
var (
	ErrUserNotFound        = fmt.Errorf("%w: user", types.ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("%w: session", types.ErrNotFound)
	ErrMessageNotFound     = fmt.Errorf("%w: message", types.ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("%w: participant", types.ErrNotFound)
	ErrStoreClosed         = errors.Join(types.ErrPersistence, errors.New("store is closed"))
)
