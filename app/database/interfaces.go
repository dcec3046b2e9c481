package database

import (
	"context"
	"errors"
)

// ErrCorruptCache is returned when a processed items store exists but cannot be read back.
var ErrCorruptCache = errors.New("processed cache is corrupt")

// Store is the durable backing of a ProcessedSet. Save replaces the whole
// content atomically.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, ids []string) error
	Close() error
}
