package gemini

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// ErrInactive rejects traffic while the session is not in the active state.
// Callers must not queue or retry; the frame is simply lost.
var ErrInactive = errors.New("gemini: live session is not active")

// ErrSetupTimeout means the server never acknowledged our setup message.
var ErrSetupTimeout = errors.New("gemini: timed out waiting for setup acknowledgement")

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrConnection     ErrorType = "connection_error"
)

// Error represents a failure reported by the live endpoint, usually as a
// websocket close frame.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gemini: %s: %s (close code %d)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("gemini: %s: %s", e.Type, e.Message)
}

// IsRetryable reports whether a fresh session could plausibly succeed.
// The live client never reconnects on its own; this informs the caller.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI, ErrConnection:
		return true
	default:
		return false
	}
}

// classifyClose maps a websocket read error to the error taxonomy. The live
// endpoint signals quota and auth failures through close codes.
func classifyClose(err error) error {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return &Error{Type: ErrConnection, Message: err.Error()}
	}

	var t ErrorType
	switch ce.Code {
	case websocket.ClosePolicyViolation:
		t = ErrAuthentication
	case websocket.CloseTryAgainLater:
		t = ErrOverloaded
	case websocket.CloseInternalServerErr:
		t = ErrAPI
	case websocket.CloseUnsupportedData, websocket.CloseInvalidFramePayloadData:
		t = ErrInvalidRequest
	default:
		t = ErrConnection
	}
	return &Error{Type: t, Message: ce.Text, Code: ce.Code}
}
