package registry

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("toolchain not found")
	ErrLocked        = errors.New("registry is locked by another process")
	ErrAlreadyExists = errors.New("toolchain already registered")
	ErrIO            = errors.New("registry i/o error")
)

// Error wraps a registry failure. Err is one of the sentinel errors above.
type Error struct {
	Op    string
	ID    string
	Err   error
	Cause error
}

func (e *Error) Error() string {
	msg := "registry " + e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg = fmt.Sprintf("%s: %v", msg, e.Err)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func ioError(op, id string, cause error) error {
	return &Error{Op: op, ID: id, Err: ErrIO, Cause: cause}
}
