// Package store provides the durable key-value backends and the bounded
// seen-listing retention store built on top of them.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when no data exists for a key. Callers
// that fail open (the retention store does) test for it with errors.Is.
var ErrNotFound = errors.New("key not found")

// Storage is the durable backend contract. Values are JSON-marshaled by the
// implementation, so Save accepts any marshalable value and Load fills dest.
type Storage interface {
	Save(ctx context.Context, key string, data interface{}) error
	Load(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Config selects and parameterizes a storage backend. Retention limits are
// not part of it; they belong to Options on the retention store.
type Config struct {
	Backend     string `mapstructure:"backend"`
	DataDir     string `mapstructure:"data_dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// Open builds the configured backend. "file" is the default; "postgres"
// requires a DSN and reaches the database before returning.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStorage(cfg.DataDir)
	case "memory":
		return NewMemoryStorage(), nil
	case "postgres":
		return NewPostgresStorage(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
