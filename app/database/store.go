package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// OpenStore returns the store for backend at path.
func OpenStore(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path), nil
	case BackendSQLite:
		return OpenSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// OpenProcessedSet opens the store and loads the set from it. With reset set, a
// corrupt cache is moved aside to path+".corrupt" and an empty set is returned
// instead of ErrCorruptCache.
func OpenProcessedSet(ctx context.Context, backend, path string, reset bool) (*ProcessedSet, error) {
	set, err := openAndLoad(ctx, backend, path)
	if err == nil || !errors.Is(err, ErrCorruptCache) || !reset {
		return set, err
	}

	slog.Warn("Processed cache is corrupt, starting with an empty set", "path", path, "error", err)

	if err := os.Rename(path, path+".corrupt"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to move corrupt cache aside: %w", err)
	}
	return openAndLoad(ctx, backend, path)
}

func openAndLoad(ctx context.Context, backend, path string) (*ProcessedSet, error) {
	store, err := OpenStore(ctx, backend, path)
	if err != nil {
		return nil, err
	}

	set, err := LoadProcessedSet(ctx, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return set, nil
}

// Close releases the underlying store.
func (s *ProcessedSet) Close() error {
	return s.store.Close()
}
