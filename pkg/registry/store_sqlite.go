package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"pytc/pkg/toolchain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps the registry in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and applies pending migrations.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite set busy timeout: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	// m.Close would close db as well; the store owns it.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite migrate up: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]toolchain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, install_path, executable, origin, installed_at
FROM toolchains
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list toolchains: %w", err)
	}
	defer rows.Close()

	var out []toolchain.Entry
	for rows.Next() {
		var rawID, installPath, executable, rawOrigin, installedAt string
		if err := rows.Scan(&rawID, &installPath, &executable, &rawOrigin, &installedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan toolchain: %w", err)
		}
		id, err := toolchain.Parse(rawID)
		if err != nil {
			return nil, err
		}
		origin, err := toolchain.ParseOrigin(rawOrigin)
		if err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339Nano, installedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite toolchain %s: bad installed_at: %w", rawID, err)
		}
		out = append(out, toolchain.Entry{
			ID:          id,
			InstallPath: installPath,
			Executable:  executable,
			Origin:      origin,
			InstalledAt: at,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list toolchains: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Put(ctx context.Context, entry toolchain.Entry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO toolchains (id, implementation, version, variant, install_path, executable, origin, installed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(),
		string(entry.ID.Implementation),
		entry.ID.Version.String(),
		entry.ID.Variant,
		entry.InstallPath,
		entry.Executable,
		string(entry.Origin),
		entry.InstalledAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert toolchain: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id toolchain.ID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM toolchains WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("sqlite delete toolchain: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
