package core

import (
	"fmt"
)

// ErrorCategory classifies an error for recovery policy and reporting.
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // no error
	ErrCategoryTimeout                         // command or budget deadline exceeded
	ErrCategoryConnection                      // actuator transport failed
	ErrCategoryPointer                         // pointer lost or unresponsive
	ErrCategoryCredential                      // credential prompt detected
	ErrCategoryConfig                          // invalid configuration
)

// String returns the string representation of ErrorCategory.
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryPointer:
		return "pointer"
	case ErrCategoryCredential:
		return "credential"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// ExplorationError is a structured error with category and machine code.
type ExplorationError struct {
	Category ErrorCategory
	Code     string // machine-readable: transport_timeout, pointer_stuck, ...
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ExplorationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ExplorationError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy of the error with the given cause.
func (e *ExplorationError) WithCause(cause error) *ExplorationError {
	return &ExplorationError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message.
func (e *ExplorationError) WithMessage(msg string) *ExplorationError {
	return &ExplorationError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Cause:    e.Cause,
	}
}

// Predefined errors covering the recovery taxonomy.
var (
	// ErrTransportTimeout: a command exceeded its deadline twice, after a
	// reset-and-reconnect retry. Not fatal to the run.
	ErrTransportTimeout = &ExplorationError{
		Category: ErrCategoryTimeout,
		Code:     "transport_timeout",
		Message:  "actuator command timed out after retry",
	}

	// ErrPointerNotFound: the locator could not find the pointer and
	// recovery probing was exhausted.
	ErrPointerNotFound = &ExplorationError{
		Category: ErrCategoryPointer,
		Code:     "pointer_not_found",
		Message:  "pointer not found after recovery",
	}

	// ErrPointerStuck: the pointer stopped moving in response to commands.
	ErrPointerStuck = &ExplorationError{
		Category: ErrCategoryPointer,
		Code:     "pointer_stuck",
		Message:  "pointer unresponsive to move commands",
	}

	// ErrCredentialPrompt: a credential prompt appeared. Hard stop for the
	// triggering element; retrying is unsafe.
	ErrCredentialPrompt = &ExplorationError{
		Category: ErrCategoryCredential,
		Code:     "credential_prompt",
		Message:  "credential prompt detected",
	}

	// ErrExplorationTimeout: the wall-clock budget ran out. A normal
	// terminal outcome, not a failure.
	ErrExplorationTimeout = &ExplorationError{
		Category: ErrCategoryTimeout,
		Code:     "exploration_timeout",
		Message:  "exploration budget exhausted",
	}

	// ErrSetup: a capability could not be initialized.
	ErrSetup = &ExplorationError{
		Category: ErrCategoryConfig,
		Code:     "setup_failed",
		Message:  "setup failed",
	}
)
