package bridge

import (
	"errors"
	"fmt"
)

// JSON-RPC-style error codes used on the wire.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeAuthFailed     = -32001
	CodeRateLimited    = -32000
)

// ErrServerClosed is returned by Tick and Run after Stop.
var ErrServerClosed = errors.New("bridge: server closed")

// Error is a structured protocol error carried in the response envelope.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge: %s (code %d)", e.Message, e.Code)
}

// Errorf builds a protocol error with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// errIdentificationRequired is returned for any non-hello method sent
// before a successful handshake. The data payload carries a hint so
// clients can self-correct.
func errIdentificationRequired(method string) *Error {
	return &Error{
		Code:    CodeInvalidRequest,
		Message: fmt.Sprintf("identification required before calling %q", method),
		Data:    map[string]any{"hint": "send hello first"},
	}
}

// asProtocolError converts an arbitrary handler failure into a wire
// error. Typed *Error values pass through; anything else, tool panics
// included, becomes an internal error so the connection survives.
func asProtocolError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
