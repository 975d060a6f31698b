package repository

import (
	"context"
	"testing"
	"time"

	"boothbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, store domain.Store) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		got, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("PutAndGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "appointment:1", []byte(`{"id":"1"}`), 0))
		got, err := store.Get(ctx, "appointment:1")
		require.NoError(t, err)
		assert.Equal(t, `{"id":"1"}`, string(got))
	})

	t.Run("PutIfAbsent", func(t *testing.T) {
		ok, err := store.PutIfAbsent(ctx, "lock:slot", []byte("a"), time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.PutIfAbsent(ctx, "lock:slot", []byte("b"), time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		got, _ := store.Get(ctx, "lock:slot")
		assert.Equal(t, "a", string(got))
	})

	t.Run("DeleteIfValue", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "lock:cas", []byte("mine"), time.Minute))

		ok, err := store.DeleteIfValue(ctx, "lock:cas", []byte("theirs"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.DeleteIfValue(ctx, "lock:cas", []byte("mine"))
		require.NoError(t, err)
		assert.True(t, ok)

		got, _ := store.Get(ctx, "lock:cas")
		assert.Nil(t, got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "tmp", []byte("x"), 0))
		require.NoError(t, store.Delete(ctx, "tmp"))
		require.NoError(t, store.Delete(ctx, "tmp"))
		got, _ := store.Get(ctx, "tmp")
		assert.Nil(t, got)
	})

	t.Run("KeysByPrefix", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "audit:0001:a", []byte("1"), 0))
		require.NoError(t, store.Put(ctx, "audit:0002:b", []byte("2"), 0))
		require.NoError(t, store.Put(ctx, "auditx", []byte("3"), 0))

		keys, err := store.Keys(ctx, "audit:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"audit:0001:a", "audit:0002:b"}, keys)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
