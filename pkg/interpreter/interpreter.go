package interpreter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"pytc/pkg/semver"
	"pytc/pkg/toolchain"
)

// ErrInvalidInterpreter marks a path that does not hold a usable interpreter.
var ErrInvalidInterpreter = errors.New("not a valid interpreter")

// RegistrationError is returned when a path cannot be registered as a toolchain.
type RegistrationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *RegistrationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %v: %s", e.Path, e.Err, e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

var candidatesByImpl = map[toolchain.Implementation][]string{
	toolchain.CPython: {"bin/python3", "bin/python", "python.exe", "python3", "python"},
	toolchain.PyPy:    {"bin/pypy3", "bin/pypy", "pypy3.exe", "pypy.exe", "bin/python3", "pypy3"},
}

// Candidates returns the relative binary paths probed for impl, in order.
// An empty impl yields the candidates of every implementation.
func Candidates(impl toolchain.Implementation) []string {
	if impl != "" {
		return candidatesByImpl[impl]
	}
	var out []string
	seen := map[string]bool{}
	for _, i := range toolchain.Implementations() {
		for _, c := range candidatesByImpl[i] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Locate returns the interpreter binary at path. A file must itself be
// executable; a directory is searched for the known binary locations.
func Locate(path string, impl toolchain.Implementation) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &RegistrationError{Path: path, Err: ErrInvalidInterpreter, Reason: err.Error()}
	}
	if !info.IsDir() {
		if !IsExecutable(path) {
			return "", &RegistrationError{Path: path, Err: ErrInvalidInterpreter, Reason: "file is not executable"}
		}
		return path, nil
	}

	for _, rel := range Candidates(impl) {
		candidate := filepath.Join(path, filepath.FromSlash(rel))
		if IsExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", &RegistrationError{Path: path, Err: ErrInvalidInterpreter, Reason: "no interpreter binary found"}
}

// IsExecutable reports whether path is a regular file the current user may execute.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.HasSuffix(strings.ToLower(path), ".exe")
	}
	return info.Mode()&0111 != 0
}

// Info is what an interpreter reports about itself.
type Info struct {
	Implementation toolchain.Implementation
	Version        semver.Version
	Executable     string
}

const probeScript = `import sys; print(sys.implementation.name, "%d.%d.%d" % sys.version_info[:3])`

// Probe runs the interpreter and asks it for its implementation and version.
func Probe(ctx context.Context, executable string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, executable, "-c", probeScript)
	output, err := cmd.Output()
	if err != nil {
		return Info{}, &RegistrationError{Path: executable, Err: ErrInvalidInterpreter, Reason: fmt.Sprintf("probe failed: %v", err)}
	}

	info, err := parseProbeOutput(firstLine(strings.TrimSpace(string(output))))
	if err != nil {
		return Info{}, &RegistrationError{Path: executable, Err: ErrInvalidInterpreter, Reason: err.Error()}
	}
	info.Executable = executable
	return info, nil
}

func parseProbeOutput(line string) (Info, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Info{}, fmt.Errorf("unexpected probe output %q", line)
	}
	impl, err := toolchain.ParseImplementation(fields[0])
	if err != nil {
		return Info{}, fmt.Errorf("interpreter reports unsupported implementation %q", fields[0])
	}
	v, err := semver.Parse(fields[1])
	if err != nil {
		return Info{}, fmt.Errorf("interpreter reports unparsable version %q", fields[1])
	}
	return Info{Implementation: impl, Version: v}, nil
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
