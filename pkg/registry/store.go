package registry

import (
	"context"
	"fmt"

	"pytc/pkg/toolchain"
)

// Store persists registry entries. Every mutating call must be durable when
// it returns. Stores do not enforce key uniqueness; the Registry does that
// under its lock.
type Store interface {
	Load(ctx context.Context) ([]toolchain.Entry, error)
	Put(ctx context.Context, entry toolchain.Entry) error
	Delete(ctx context.Context, id toolchain.ID) error
	Close() error
}

const (
	BackendTOML   = "toml"
	BackendSQLite = "sqlite"
)

// OpenStore opens the store for backend at path.
func OpenStore(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case "", BackendTOML:
		return NewTOMLStore(path), nil
	case BackendSQLite:
		return OpenSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", backend)
	}
}
