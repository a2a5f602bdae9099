package connection

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	_, err := store.Get(ctx, "exec-1")
	require.ErrorIs(t, err, ErrBindingNotFound)

	require.NoError(t, store.Put(ctx, models.ConnectionBinding{ExecutionID: "exec-1", ConnectionID: "conn-a"}))
	require.NoError(t, store.Put(ctx, models.ConnectionBinding{ExecutionID: "exec-2", ConnectionID: "conn-a"}))
	require.NoError(t, store.Put(ctx, models.ConnectionBinding{ExecutionID: "exec-3", ConnectionID: "conn-b"}))

	binding, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "conn-a", binding.ConnectionID)
	assert.False(t, binding.CreatedAt.IsZero())

	removed, err := store.DeleteByConnection(ctx, "conn-a")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.Get(ctx, "exec-2")
	require.ErrorIs(t, err, ErrBindingNotFound)

	require.NoError(t, store.Delete(ctx, "exec-3"))
	_, err = store.Get(ctx, "exec-3")
	require.ErrorIs(t, err, ErrBindingNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()

	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, models.ConnectionBinding{ExecutionID: "exec-1", ConnectionID: "conn-a"}))

	now = now.Add(2 * time.Minute)

	_, err := store.Get(ctx, "exec-1")
	require.ErrorIs(t, err, ErrBindingNotFound)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 0, store.Sweep())
}

func TestWaiter_Await(t *testing.T) {
	t.Parallel()

	t.Run("times out when no client binds", func(t *testing.T) {
		t.Parallel()

		waiter := NewWaiter(NewMemoryStore(0), slog.Default(),
			WithPollInterval(5*time.Millisecond), WithWaitTimeout(30*time.Millisecond))

		_, err := waiter.Await(context.Background(), "exec-1")
		require.Error(t, err)
		assert.Equal(t, models.ErrConnectionTimeout, models.TypeOf(err))
	})

	t.Run("returns the binding registered mid-wait", func(t *testing.T) {
		t.Parallel()

		store := NewMemoryStore(0)
		waiter := NewWaiter(store, slog.Default(),
			WithPollInterval(5*time.Millisecond), WithWaitTimeout(time.Second))

		go func() {
			time.Sleep(20 * time.Millisecond)

			_ = store.Put(context.Background(), models.ConnectionBinding{ExecutionID: "exec-1", ConnectionID: "conn-a"})
		}()

		binding, err := waiter.Await(context.Background(), "exec-1")
		require.NoError(t, err)
		assert.Equal(t, "conn-a", binding.ConnectionID)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		t.Parallel()

		waiter := NewWaiter(NewMemoryStore(0), slog.Default(), WithPollInterval(5*time.Millisecond))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := waiter.Await(ctx, "exec-1")
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestMemoryRelay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	relay := NewMemoryRelay()

	require.ErrorIs(t, relay.Push(ctx, "conn-a", []byte("x")), ErrConnectionGone)

	ch, release, err := relay.Subscribe(ctx, "conn-a")
	require.NoError(t, err)

	_, _, err = relay.Subscribe(ctx, "conn-a")
	require.Error(t, err)

	require.NoError(t, relay.Push(ctx, "conn-a", []byte("hello")))
	assert.Equal(t, []byte("hello"), <-ch)

	release()
	release()

	require.ErrorIs(t, relay.Push(ctx, "conn-a", []byte("x")), ErrConnectionGone)
}
