package session

import (
	"fmt"

	"chatrelay/pkg/types"
)

var (
	ErrInvalidCreatedBy = fmt.Errorf("%w: created_by must be a valid user ID", types.ErrValidation)
	ErrSessionInactive  = fmt.Errorf("%w: session is not active", types.ErrAccessDenied)
)
