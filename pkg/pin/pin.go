// Package pin stores the toolchain request a project is pinned to.
//
// A pin is the raw request as the user wrote it ("cpython@3.11"), kept in a
// one-line .python-version file at the project root. It is re-resolved on
// every use, so a pin keeps tracking the newest matching installed toolchain.
package pin

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const FileName = ".python-version"

// projectMarkers identify a project root when walking up from a directory.
var projectMarkers = []string{"pyproject.toml", FileName}

var ErrEmptyRequest = errors.New("empty toolchain request")

// Record is a project's pin.
type Record struct {
	ProjectPath string
	Request     string
}

// Path returns the pin file location for a project.
func Path(projectPath string) string {
	return filepath.Join(projectPath, FileName)
}

// Read returns the pin of projectPath, or nil when the project has none.
// Blank lines and lines starting with # are ignored; the first remaining
// line is the request.
func Read(projectPath string) (*Record, error) {
	f, err := os.Open(Path(projectPath))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return &Record{ProjectPath: projectPath, Request: line}, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", Path(projectPath), err)
	}
	return nil, nil
}

// Write stores request as the pin of projectPath, replacing any previous pin.
func Write(projectPath, request string) error {
	request = strings.TrimSpace(request)
	if request == "" || strings.ContainsAny(request, "\r\n") {
		return ErrEmptyRequest
	}
	path := Path(projectPath)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(request+"\n"), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// FindProjectRoot walks up from start to the nearest directory holding a
// pyproject.toml or a pin file. It returns start when none is found.
func FindProjectRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	dir := abs
	for {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// Find walks up from start and returns the nearest pin, or nil.
func Find(start string) (*Record, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	for {
		rec, err := Read(dir)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}
