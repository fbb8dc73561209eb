package database

import (
	"fmt"

	"chatrelay/pkg/types"
)

var ErrDuplicateUsername = fmt.Errorf("%w: username is already taken", types.ErrValidation)
