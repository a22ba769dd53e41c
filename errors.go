package modkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fernandezvara/dbkit"
)

// Sentinel errors for modkit operations.
var (
	// ErrNotFound is returned when an actor or target account does not exist.
	ErrNotFound = errors.New("modkit: account not found")

	// ErrCommandNotFound is returned when a named command does not exist.
	ErrCommandNotFound = errors.New("modkit: command not found")

	// ErrActionNotFound is returned when an audit entry lookup misses.
	ErrActionNotFound = errors.New("modkit: action not found")

	// ErrForbidden is returned when the actor's role or ownership does not allow the operation.
	ErrForbidden = errors.New("modkit: forbidden")

	// ErrInvalidRole is returned when the target is not in the role state the transition requires.
	ErrInvalidRole = errors.New("modkit: invalid role")

	// ErrNotAllowed is returned when the target state forbids the operation (e.g. un-warn at zero).
	ErrNotAllowed = errors.New("modkit: not allowed")

	// ErrAlreadyExists is returned on a uniqueness collision (command name, handle).
	ErrAlreadyExists = errors.New("modkit: already exists")

	// ErrNotModified is returned when a conditional update touched no rows because the
	// row changed between read and write. The caller may retry.
	ErrNotModified = errors.New("modkit: not modified")

	// ErrInvalidRequest is returned when a dispatched request is malformed.
	ErrInvalidRequest = errors.New("modkit: invalid request")

	// ErrInternal wraps failures of the backing store.
	ErrInternal = errors.New("modkit: internal error")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err       error  // Underlying sentinel error
	Message   string // Additional context
	Op        string // Operation that failed
	ActorID   int64  // Actor who triggered the error (if applicable)
	AccountID int64  // Account involved (if applicable)
	Command   string // Command involved (if applicable)
	Cause     error  // Store error behind an ErrInternal (if any)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the sentinel and the store cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithOp records the operation name.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithActor adds actor information to the error.
func (e *Error) WithActor(actorID int64) *Error {
	e.ActorID = actorID
	return e
}

// WithAccount adds target account information to the error.
func (e *Error) WithAccount(accountID int64) *Error {
	e.AccountID = accountID
	return e
}

// WithCommand adds command information to the error.
func (e *Error) WithCommand(name string) *Error {
	e.Command = name
	return e
}

// WithCause attaches the underlying store error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// IsNotFound checks if an error reports a missing account.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCommandNotFound checks if an error reports a missing command.
func IsCommandNotFound(err error) bool {
	return errors.Is(err, ErrCommandNotFound)
}

// IsForbidden checks if an error is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsInvalidRole checks if an error is due to the target's role state.
func IsInvalidRole(err error) bool {
	return errors.Is(err, ErrInvalidRole)
}

// IsAlreadyExists checks if an error is a uniqueness collision.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsRetryable reports whether the caller can reasonably retry the operation:
// lost compare-and-set races and transient store failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotModified) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if !errors.Is(err, ErrInternal) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, transient := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"deadlock",
		"lock wait timeout",
		"database is locked",
		"could not serialize",
		"try again",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// classify maps a raw store error into the modkit taxonomy. missing is the
// sentinel reported when the row does not exist.
func classify(op string, err error, missing error) error {
	if err == nil {
		return nil
	}
	var modErr *Error
	if errors.As(err, &modErr) {
		return err
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return NewError(missing, "").WithOp(op)
	case dbkit.IsDuplicate(err), isSQLiteUniqueViolation(err):
		return NewError(ErrAlreadyExists, "").WithOp(op).WithCause(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrInternal, "").WithOp(op).WithCause(err)
	}
	return NewError(ErrInternal, "").WithOp(op).WithCause(dbkit.WithErr1(err, op).Err())
}
