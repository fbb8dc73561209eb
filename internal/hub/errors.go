package hub

import (
	"errors"
	"fmt"

	"chatrelay/pkg/types"
)

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrNotJoined         = errors.New("connection has not joined a session")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnknownFrame      = errors.New("unknown frame type")
	ErrNotParticipant    = fmt.Errorf("%w: user is not an active participant of this session", types.ErrAccessDenied)
)
