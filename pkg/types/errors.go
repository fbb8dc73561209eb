package types

import "errors"

// Error taxonomy shared by every component. Specific errors wrap one of these
// so callers can classify with errors.Is.
var (
	ErrValidation            = errors.New("validation error")
	ErrAccessDenied          = errors.New("access denied")
	ErrNotFound              = errors.New("not found")
	ErrProviderConfiguration = errors.New("provider configuration error")
	ErrProviderTransient     = errors.New("provider transient error")
	ErrPersistence           = errors.New("persistence error")
)

// Validation errors
var (
	ErrEmptyContent     = errors.Join(ErrValidation, errors.New("message content cannot be empty"))
	ErrContentTooLong   = errors.Join(ErrValidation, errors.New("message is too long (max 4000 characters)"))
	ErrInvalidID        = errors.Join(ErrValidation, errors.New("identifier must be a valid UUID"))
	ErrInvalidUsername  = errors.Join(ErrValidation, errors.New("username must be 1-50 characters"))
	ErrInvalidTitle     = errors.Join(ErrValidation, errors.New("session title must be 1-200 characters"))
	ErrAIFieldsMismatch = errors.Join(ErrValidation, errors.New("AI provider and model must be set exactly when message is AI-authored"))
)
