package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected, recoverable conditions. They are
// reported to the caller as values and converted to user-visible
// guidance; they never cross a sweep-cycle boundary.
var (
	// ErrAuthUnavailable means the credential fetch failed. The user's
	// turn is kept; the call is retried on the user's next message.
	ErrAuthUnavailable = errors.New("engine: credential unavailable")

	// ErrNothingToContinue means "continue" was invoked with an empty
	// history. Not a fault; the caller responds with guidance.
	ErrNothingToContinue = errors.New("engine: no prior conversation to continue")
)

// StatusClass coarsely classifies a completion failure.
type StatusClass string

const (
	StatusAuth      StatusClass = "auth"
	StatusRateLimit StatusClass = "rate_limit"
	StatusInvalid   StatusClass = "invalid"
	StatusServer    StatusClass = "server"
	StatusNetwork   StatusClass = "network"
)

// CompletionError reports a failed or malformed completion call.
type CompletionError struct {
	// Class is the coarse status class shown to the user.
	Class StatusClass

	// StatusCode is the HTTP status, or 0 for transport failures.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *CompletionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("engine: completion failed (%s, status %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("engine: completion failed (%s): %v", e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *CompletionError) Unwrap() error { return e.Err }

// NewCompletionError builds a CompletionError, deriving the status
// class from the HTTP status code. Use code 0 for transport failures.
func NewCompletionError(code int, err error) *CompletionError {
	return &CompletionError{Class: classify(code), StatusCode: code, Err: err}
}

func classify(code int) StatusClass {
	switch {
	case code == 0:
		return StatusNetwork
	case code == 401 || code == 403:
		return StatusAuth
	case code == 429:
		return StatusRateLimit
	case code >= 500:
		return StatusServer
	default:
		return StatusInvalid
	}
}
