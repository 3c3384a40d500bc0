package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dilneiss/CSRFProtector/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory returns a fresh, empty store that is closed by the test cleanup
type storeFactory func(t *testing.T) core.SessionStore

func testRecord(name string, issuedAt int64) core.TokenRecord {
	return core.TokenRecord{
		AccessKey:  "access-key",
		TokenName:  name,
		TokenValue: "value-" + name,
		IssuedAt:   issuedAt,
	}
}

func acceptAll(core.TokenRecord) bool { return true }

// runStoreSuite exercises the SessionStore contract against one backend
func runStoreSuite(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	now := time.Now().Unix()

	t.Run("PutGet", func(t *testing.T) {
		store := newStore(t)
		rec := testRecord("n1", now)
		require.NoError(t, store.Put(ctx, "s1", rec))

		got, err := store.Get(ctx, "s1", rec.AccessKey, rec.TokenName)
		require.NoError(t, err)
		assert.Equal(t, rec, *got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "s1", "access-key", "missing")
		assert.ErrorIs(t, err, core.ErrTokenNotFound)
	})

	t.Run("PutRejectsEmptyKey", func(t *testing.T) {
		store := newStore(t)
		err := store.Put(ctx, "", testRecord("n1", now))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("SessionsAreIsolated", func(t *testing.T) {
		store := newStore(t)
		rec := testRecord("n1", now)
		require.NoError(t, store.Put(ctx, "s1", rec))

		_, err := store.Get(ctx, "s2", rec.AccessKey, rec.TokenName)
		assert.ErrorIs(t, err, core.ErrTokenNotFound)

		ok, err := store.Consume(ctx, "s2", rec.AccessKey, rec.TokenName, acceptAll)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		rec := testRecord("n1", now)
		require.NoError(t, store.Put(ctx, "s1", rec))
		require.NoError(t, store.Delete(ctx, "s1", rec.AccessKey, rec.TokenName))

		_, err := store.Get(ctx, "s1", rec.AccessKey, rec.TokenName)
		assert.ErrorIs(t, err, core.ErrTokenNotFound)

		// Deleting again is not an error
		assert.NoError(t, store.Delete(ctx, "s1", rec.AccessKey, rec.TokenName))
	})

	t.Run("ConsumeRemovesOnAccept", func(t *testing.T) {
		store := newStore(t)
		rec := testRecord("n1", now)
		require.NoError(t, store.Put(ctx, "s1", rec))

		var seen core.TokenRecord
		ok, err := store.Consume(ctx, "s1", rec.AccessKey, rec.TokenName, func(r core.TokenRecord) bool {
			seen = r
			return true
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, rec, seen)

		_, err = store.Get(ctx, "s1", rec.AccessKey, rec.TokenName)
		assert.ErrorIs(t, err, core.ErrTokenNotFound)

		ok, err = store.Consume(ctx, "s1", rec.AccessKey, rec.TokenName, acceptAll)
		require.NoError(t, err)
		assert.False(t, ok, "a consumed record cannot be consumed twice")
	})

	t.Run("ConsumeKeepsOnReject", func(t *testing.T) {
		store := newStore(t)
		rec := testRecord("n1", now)
		require.NoError(t, store.Put(ctx, "s1", rec))

		ok, err := store.Consume(ctx, "s1", rec.AccessKey, rec.TokenName, func(core.TokenRecord) bool { return false })
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := store.Get(ctx, "s1", rec.AccessKey, rec.TokenName)
		require.NoError(t, err)
		assert.Equal(t, rec, *got)
	})

	t.Run("ConsumeMissingSkipsAccept", func(t *testing.T) {
		store := newStore(t)
		called := false
		ok, err := store.Consume(ctx, "s1", "access-key", "missing", func(core.TokenRecord) bool {
			called = true
			return true
		})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, called)
	})

	t.Run("ConcurrentConsumeSucceedsOnce", func(t *testing.T) {
		store := newStore(t)
		rec := testRecord("n1", now)
		require.NoError(t, store.Put(ctx, "s1", rec))

		const workers = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.Consume(ctx, "s1", rec.AccessKey, rec.TokenName, acceptAll)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("Sweep", func(t *testing.T) {
		store := newStore(t)
		old := testRecord("old", now-3600)
		fresh := testRecord("fresh", now)
		require.NoError(t, store.Put(ctx, "s1", old))
		require.NoError(t, store.Put(ctx, "s1", fresh))

		removed, err := store.Sweep(ctx, time.Unix(now-1800, 0))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		_, err = store.Get(ctx, "s1", old.AccessKey, old.TokenName)
		assert.ErrorIs(t, err, core.ErrTokenNotFound)
		_, err = store.Get(ctx, "s1", fresh.AccessKey, fresh.TokenName)
		assert.NoError(t, err)
	})
}
