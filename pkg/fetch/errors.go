package fetch

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork          = errors.New("network error")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrExtract          = errors.New("extraction failed")
	ErrSanity           = errors.New("sanity check failed")
	ErrNotDownloadable  = errors.New("toolchain is not downloadable")
)

// Error is returned by Fetch. Err is one of the sentinel errors above; Cause
// carries the underlying failure.
type Error struct {
	ID    string
	URL   string
	Err   error
	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.ID, e.Err)
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
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

// ChecksumError details a checksum mismatch.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("expected sha256 %s, got %s", e.Expected, e.Actual)
}
