package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dilneiss/CSRFProtector/core"
	"go.uber.org/zap"
)

// Supported backend names
const (
	BackendMemory = backendMemory
	BackendRedis  = backendRedis
	BackendSQLite = backendSQLite
)

// Options selects and configures a session store backend
type Options struct {
	Backend          string
	MemoryMaxEntries int
	// MemoryMaxPerSession bounds the records one session holds in memory
	MemoryMaxPerSession int
	Redis               RedisOptions
	SQLitePath          string
	// TTL is applied by backends with native expiry
	TTL time.Duration
}

// NewSessionStore builds the backend named by opts.Backend.
// The Redis backend is pinged before it is returned.
func NewSessionStore(ctx context.Context, opts Options, logger *zap.SugaredLogger) (core.SessionStore, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendMemory:
		store, err := NewMemoryStoreWithLimits(opts.MemoryMaxEntries, opts.MemoryMaxPerSession, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store := NewRedisStore(opts.Redis, opts.TTL, logger)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Redis.Addr, err)
		}
		return store, nil
	case BackendSQLite:
		store, err := NewSQLiteStore(opts.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
