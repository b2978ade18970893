package charter

import (
	"errors"
	"fmt"
)

// Kind classifies a failed update.
type Kind string

const (
	KindNotFound       Kind = "NotFound"
	KindValidation     Kind = "ValidationError"
	KindInvalidSection Kind = "InvalidSection"
	KindConflict       Kind = "Conflict"
	KindPersistence    Kind = "PersistenceError"
)

// Error is returned by the coordinator for every failed call.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsRetryable reports whether nothing was committed and the whole call may
// be repeated as is.
func IsRetryable(err error) bool {
	return KindOf(err) == KindPersistence
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
