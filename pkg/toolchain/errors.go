package toolchain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFormat marks a toolchain string whose version segment is malformed.
	ErrInvalidFormat = errors.New("invalid toolchain format")
	// ErrUnknownImplementation marks a toolchain string naming an unknown implementation.
	ErrUnknownImplementation = errors.New("unknown implementation")
)

// ParseError is returned by Parse and ParseRequest.
type ParseError struct {
	Input  string
	Err    error
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("parse toolchain %q: %v: %s", e.Input, e.Err, e.Detail)
	}
	return fmt.Sprintf("parse toolchain %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
