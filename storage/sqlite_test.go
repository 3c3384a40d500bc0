package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dilneiss/CSRFProtector/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSQLiteStore(t *testing.T) core.SessionStore {
	dbPath := filepath.Join(t.TempDir(), "tokens.db")
	store, err := NewSQLiteStore(dbPath, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err, "Failed to create SQLite token store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreSuite(t, newTestSQLiteStore)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, "s1", testRecord("n1", time.Now().Unix())))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "tokens.db")
	store, err := NewSQLiteStore(dbPath, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.Equal(t, dbPath, store.Path)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tokens.db")
	logger := zaptest.NewLogger(t).Sugar()

	store, err := NewSQLiteStore(dbPath, logger)
	require.NoError(t, err)
	rec := testRecord("n1", time.Now().Unix())
	require.NoError(t, store.Put(ctx, "s1", rec))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath, logger)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "s1", rec.AccessKey, rec.TokenName)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
}

func TestSQLiteStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	rec := testRecord("n1", 100)
	require.NoError(t, store.Put(ctx, "s1", rec))
	rec.TokenValue = "rotated"
	rec.IssuedAt = 200
	require.NoError(t, store.Put(ctx, "s1", rec))

	got, err := store.Get(ctx, "s1", rec.AccessKey, rec.TokenName)
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.TokenValue)
	assert.Equal(t, int64(200), got.IssuedAt)
}

func TestValidateDatabasePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"memory", ":memory:", false},
		{"relative", "data/tokens.db", false},
		{"empty", "", true},
		{"traversal", "../tokens.db", true},
		{"null byte", "tokens\x00.db", true},
		{"too long", string(make([]byte, 600)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDatabasePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
