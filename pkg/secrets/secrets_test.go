package secrets

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	mutex sync.Mutex
	calls int
	next  Resolver
}

func (r *countingResolver) SecretByProvider(ctx context.Context, tenant, projectID, provider string) (*models.Secret, error) {
	r.mutex.Lock()
	r.calls++
	r.mutex.Unlock()

	return r.next.SecretByProvider(ctx, tenant, projectID, provider)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(&models.Secret{
		Tenant:   "acme",
		Project:  "p1",
		Provider: ProviderJWT,
		Data:     map[string]any{"secret": "s3cr3t"},
	})

	secret, err := store.SecretByProvider(context.Background(), "acme", "p1", ProviderJWT)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", secret.String("secret"))
	assert.Empty(t, secret.String("missing"))

	_, err = store.SecretByProvider(context.Background(), "acme", "p2", ProviderJWT)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, "p2", lookupErr.Project)
}

func TestCache_MemoizesUntilExpiry(t *testing.T) {
	t.Parallel()

	backend := &countingResolver{next: NewMemoryStore(&models.Secret{Tenant: "t", Project: "p", Provider: ProviderMongoDB})}
	cache := NewCache(backend, time.Minute, slog.Default())

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	for range 3 {
		_, err := cache.SecretByProvider(context.Background(), "t", "p", ProviderMongoDB)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, backend.calls)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, cache.Sweep())

	_, err := cache.SecretByProvider(context.Background(), "t", "p", ProviderMongoDB)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestCache_DoesNotCacheMisses(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	cache := NewCache(store, time.Minute, slog.Default())

	_, err := cache.SecretByProvider(context.Background(), "t", "p", ProviderJWT)
	require.True(t, IsNotFound(err))

	store.Put(&models.Secret{Tenant: "t", Project: "p", Provider: ProviderJWT})

	secret, err := cache.SecretByProvider(context.Background(), "t", "p", ProviderJWT)
	require.NoError(t, err)
	assert.Equal(t, ProviderJWT, secret.Provider)

	cache.Invalidate("t", "p", ProviderJWT)
	assert.Equal(t, 0, cache.Sweep())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	cache := NewCache(NewMemoryStore(&models.Secret{Tenant: "t", Project: "p", Provider: ProviderJWT}), time.Minute, slog.Default())

	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 50 {
				_, err := cache.SecretByProvider(context.Background(), "t", "p", ProviderJWT)
				assert.NoError(t, err)
				cache.Sweep()
			}
		}()
	}

	wg.Wait()
}
