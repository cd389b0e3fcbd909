package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"pytc/pkg/toolchain"
)

// TOMLStore keeps the registry in a single TOML file:
//
//	[[toolchain]]
//	id = "cpython@3.11.4"
//	install_path = "/opt/py"
//	executable = "/opt/py/bin/python3"
//	origin = "registered"
//	installed_at = 2024-05-01T10:00:00Z
type TOMLStore struct {
	path string
}

func NewTOMLStore(path string) *TOMLStore {
	return &TOMLStore{path: path}
}

type tomlFile struct {
	Toolchains []tomlEntry `toml:"toolchain"`
}

type tomlEntry struct {
	ID          string    `toml:"id"`
	InstallPath string    `toml:"install_path"`
	Executable  string    `toml:"executable"`
	Origin      string    `toml:"origin"`
	InstalledAt time.Time `toml:"installed_at"`
}

func (s *TOMLStore) Load(ctx context.Context) ([]toolchain.Entry, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, nil
	}
	var f tomlFile
	if _, err := toml.DecodeFile(s.path, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	out := make([]toolchain.Entry, 0, len(f.Toolchains))
	for _, te := range f.Toolchains {
		id, err := toolchain.Parse(te.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.path, err)
		}
		origin, err := toolchain.ParseOrigin(te.Origin)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", s.path, te.ID, err)
		}
		out = append(out, toolchain.Entry{
			ID:          id,
			InstallPath: te.InstallPath,
			Executable:  te.Executable,
			Origin:      origin,
			InstalledAt: te.InstalledAt,
		})
	}
	return out, nil
}

func (s *TOMLStore) Put(ctx context.Context, entry toolchain.Entry) error {
	entries, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return s.write(append(entries, entry))
}

func (s *TOMLStore) Delete(ctx context.Context, id toolchain.ID) error {
	entries, err := s.Load(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return s.write(kept)
}

func (s *TOMLStore) Close() error { return nil }

// write replaces the file atomically: encode to a temp file, fsync, rename.
func (s *TOMLStore) write(entries []toolchain.Entry) error {
	sort.Slice(entries, func(i, j int) bool { return toolchain.Compare(entries[i].ID, entries[j].ID) < 0 })

	f := tomlFile{Toolchains: make([]tomlEntry, 0, len(entries))}
	for _, e := range entries {
		f.Toolchains = append(f.Toolchains, tomlEntry{
			ID:          e.ID.String(),
			InstallPath: e.InstallPath,
			Executable:  e.Executable,
			Origin:      string(e.Origin),
			InstalledAt: e.InstalledAt.UTC(),
		})
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(out).Encode(f); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}
