package toolchain

import (
	"fmt"
	"time"
)

// Origin records how a toolchain got into the registry.
type Origin string

const (
	// Fetched toolchains live in the managed store and are deleted on removal.
	Fetched Origin = "fetched"
	// Registered toolchains are external interpreters; removal never touches their files.
	Registered Origin = "registered"
)

// ParseOrigin validates a persisted origin string.
func ParseOrigin(s string) (Origin, error) {
	switch Origin(s) {
	case Fetched, Registered:
		return Origin(s), nil
	default:
		return "", fmt.Errorf("unknown toolchain origin %q", s)
	}
}

// Entry is an installed toolchain.
type Entry struct {
	ID          ID
	InstallPath string
	// Executable is the interpreter binary inside (or equal to) InstallPath.
	Executable  string
	Origin      Origin
	InstalledAt time.Time
}
