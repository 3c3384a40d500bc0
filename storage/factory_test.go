package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewSessionStore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t).Sugar()
	mr := startMiniredis(t)

	t.Run("default is memory", func(t *testing.T) {
		store, err := NewSessionStore(ctx, Options{}, logger)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		store, err := NewSessionStore(ctx, Options{Backend: "Redis", Redis: RedisOptions{Addr: mr.Addr()}}, logger)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &RedisStore{}, store)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		_, err := NewSessionStore(ctx, Options{Backend: BackendRedis, Redis: RedisOptions{Addr: "127.0.0.1:1"}}, logger)
		assert.Error(t, err)
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tokens.db")
		store, err := NewSessionStore(ctx, Options{Backend: BackendSQLite, SQLitePath: path}, logger)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &SQLiteStore{}, store)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewSessionStore(ctx, Options{Backend: "cassandra"}, logger)
		assert.ErrorIs(t, err, ErrUnknownBackend)
	})
}
