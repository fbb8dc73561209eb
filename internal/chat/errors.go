package chat

import (
	"errors"
	"fmt"

	"chatrelay/pkg/types"
)

var (
	ErrNotParticipant       = fmt.Errorf("%w: user is not an active participant of this session", types.ErrAccessDenied)
	ErrNotAuthor            = fmt.Errorf("%w: only the author can modify this message", types.ErrAccessDenied)
	ErrAIMessageNotEditable = fmt.Errorf("%w: AI messages cannot be edited", types.ErrValidation)
	ErrMessageDeleted       = fmt.Errorf("%w: message has been deleted", types.ErrValidation)
)

// Protocol error codes sent in error frames
const (
	CodeInvalidID         = "INVALID_ID_FORMAT"
	CodeAccessDenied      = "ACCESS_DENIED"
	CodeEmptyMessage      = "EMPTY_MESSAGE"
	CodeMessageTooLong    = "MESSAGE_TOO_LONG"
	CodeRateLimited       = "RATE_LIMITED"
	CodeSendMessageFailed = "SEND_MESSAGE_FAILED"
	CodeJoinSessionFailed = "JOIN_SESSION_FAILED"
	CodeUnknownEvent      = "UNKNOWN_EVENT"
	CodeNotJoined         = "NOT_JOINED"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidFrame      = "INVALID_FRAME"
)

// ErrorCode maps an error onto its protocol code, or fallback when the error
// is not one of the classified kinds
func ErrorCode(err error, fallback string) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrEmptyContent):
		return CodeEmptyMessage
	case errors.Is(err, types.ErrContentTooLong):
		return CodeMessageTooLong
	case errors.Is(err, types.ErrInvalidID):
		return CodeInvalidID
	case errors.Is(err, types.ErrAccessDenied):
		return CodeAccessDenied
	case errors.Is(err, types.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, types.ErrValidation):
		return CodeValidation
	default:
		return fallback
	}
}
