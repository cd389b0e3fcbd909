package version

import (
	_ "embed"
	"runtime"
	"strings"
)

//go:embed version.txt
var versionFile string

// Version returns the current pytc version
func Version() string {
	return strings.TrimSpace(versionFile)
}

// GetBuildID returns the current pytc version (alias for Version)
func GetBuildID() string {
	return Version()
}

// UserAgent is sent with every HTTP request, e.g. "pytc/0.1.0 (linux; amd64)".
func UserAgent() string {
	return "pytc/" + Version() + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
