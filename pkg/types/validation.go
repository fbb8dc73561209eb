package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// FUNCTIONAL DISCOVERY: One validator instance for the process; it caches
// struct metadata and is safe for concurrent use
var validate = validator.New()

// Validator exposes the shared instance for request structs in outer layers
func Validator() *validator.Validate {
	return validate
}

// ValidateContent applies the message content rules: non-blank and at most
// MaxMessageLength characters (runes, not bytes)
func ValidateContent(content string) error {
	if err := validate.Var(strings.TrimSpace(content), "required"); err != nil {
		return ErrEmptyContent
	}
	if err := validate.Var(content, "max=4000"); err != nil {
		return ErrContentTooLong
	}
	return nil
}

// IsValidID reports whether id is a well-formed UUID
func IsValidID(id string) bool {
	return validate.Var(id, "required,uuid") == nil
}

// ValidateUsername checks the display handle used in broadcasts
func ValidateUsername(username string) error {
	if err := validate.Var(strings.TrimSpace(username), "required,max=50"); err != nil {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateTitle checks a session title
func ValidateTitle(title string) error {
	if err := validate.Var(strings.TrimSpace(title), "required,max=200"); err != nil {
		return ErrInvalidTitle
	}
	return nil
}

// Validate checks the structural invariants of a message before persistence.
// ARCHITECTURAL DISCOVERY: AI metadata (provider + model) is present exactly
// when FromAI is set
func (m *Message) Validate() error {
	if !IsValidID(m.ID) || !IsValidID(m.SessionID) || !IsValidID(m.UserID) {
		return ErrInvalidID
	}
	// Provider replies are not bound by the human input limit
	if m.FromAI {
		if strings.TrimSpace(m.Content) == "" {
			return ErrEmptyContent
		}
	} else if err := ValidateContent(m.Content); err != nil {
		return err
	}
	hasAIFields := m.AIProvider != nil && m.AIModel != nil
	if m.FromAI != hasAIFields {
		return ErrAIFieldsMismatch
	}
	if !m.FromAI && (m.AIProvider != nil || m.AIModel != nil) {
		return ErrAIFieldsMismatch
	}
	return nil
}
