// Package kv provides the key/string persistence collaborator used for
// availability records and playback preferences. Stores have no expiry;
// callers own TTL logic and key naming.
package kv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is a flat key to string store.
type Store interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys with the given prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Backend names accepted by NewStore.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSqlite = "sqlite"
	BackendRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Dir     string
	Redis   RedisConfig
}

// NewStore creates a store for the configured backend.
func NewStore(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("kv: file backend requires a directory")
		}
		return NewFileStore(filepath.Join(cfg.Dir, "listenpath.json"))
	case BackendSqlite:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("kv: sqlite backend requires a directory")
		}
		return NewSqliteStore(filepath.Join(cfg.Dir, "listenpath.db"))
	case BackendRedis:
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}
}
