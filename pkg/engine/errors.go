package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors for recovery and exit-code mapping.
type ErrorKind string

const (
	// KindProbe marks inconclusive environment detection. The probe
	// itself never raises these; they exist for collaborators that
	// refuse to operate on unknown facts.
	KindProbe ErrorKind = "probe"

	// KindPrecondition marks malformed registry construction, such as a
	// duplicate action name or a cyclic dependency. A programming
	// error, fatal at startup.
	KindPrecondition ErrorKind = "precondition"

	// KindActionFailed marks a failed external operation. Recorded in
	// the run, halts dependents, never crashes the process.
	KindActionFailed ErrorKind = "action-failed"

	// KindLockContention marks a second run attempted while another is
	// active. Fatal for this invocation, with a distinct exit code.
	KindLockContention ErrorKind = "lock-contention"

	// KindInterrupted marks operator cancellation between actions.
	KindInterrupted ErrorKind = "interrupted"
)

// Error codes for programmatic handling.
const (
	CodeDuplicateAction  = "DUPLICATE_ACTION"
	CodeCyclicDependency = "CYCLIC_DEPENDENCY"
	CodeUnknownAction    = "UNKNOWN_ACTION"
	CodeInvalidSpec      = "INVALID_SPEC"
	CodeTimeout          = "TIMEOUT"
	CodeDependencyFailed = "DEPENDENCY_FAILED"
	CodeAlreadyLocked    = "ALREADY_LOCKED"
)

// Error is a classified engine error with optional action context.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Action  string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("[%s] %s (action=%s)%s", e.Kind, e.Message, e.Action, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Kind, e.Message, e.unwrapSuffix())
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so callers can use errors.Is with
// constructor-produced sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && e.Code != t.Code {
		return false
	}
	return e.Kind == t.Kind
}

// WithAction adds action context to an error.
func (e *Error) WithAction(name string) *Error {
	e.Action = name
	return e
}

// NewPreconditionError creates a fatal registry-construction error.
func NewPreconditionError(code, message string) *Error {
	return &Error{Kind: KindPrecondition, Code: code, Message: message}
}

// NewActionError creates a recoverable action failure.
func NewActionError(message string, err error) *Error {
	return &Error{Kind: KindActionFailed, Message: message, Err: err}
}

// NewLockContentionError creates a lock contention error naming the
// holding process.
func NewLockContentionError(holderPID int) *Error {
	return &Error{
		Kind:    KindLockContention,
		Code:    CodeAlreadyLocked,
		Message: fmt.Sprintf("another run is in progress (pid %d)", holderPID),
	}
}

// NewInterruptedError creates an operator-cancellation error.
func NewInterruptedError(err error) *Error {
	return &Error{Kind: KindInterrupted, Message: "run interrupted", Err: err}
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsLockContention reports whether err indicates another active run.
func IsLockContention(err error) bool {
	return IsKind(err, KindLockContention)
}

// IsInterrupted reports whether err indicates operator cancellation.
func IsInterrupted(err error) bool {
	return IsKind(err, KindInterrupted)
}
