package secrets

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/sweeper"
)

type cacheEntry struct {
	secret    *models.Secret
	expiresAt time.Time
}

// Cache is a Resolver that memoizes another Resolver for ttl. Misses are not
// cached so a newly created secret becomes visible on the next lookup.
type Cache struct {
	next    Resolver
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	mutex   sync.RWMutex
	entries map[string]cacheEntry
}

var _ Resolver = (*Cache)(nil)

// NewCache wraps next with a TTL cache.
func NewCache(next Resolver, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		next:    next,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// SecretByProvider implements Resolver.
func (c *Cache) SecretByProvider(ctx context.Context, tenant, projectID, provider string) (*models.Secret, error) {
	k := key(tenant, projectID, provider)

	c.mutex.RLock()
	entry, ok := c.entries[k]
	c.mutex.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		return entry.secret, nil
	}

	secret, err := c.next.SecretByProvider(ctx, tenant, projectID, provider)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.entries[k] = cacheEntry{secret: secret, expiresAt: c.now().Add(c.ttl)}
	c.mutex.Unlock()

	return secret, nil
}

// Invalidate drops a cached secret.
func (c *Cache) Invalidate(tenant, projectID, provider string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.entries, key(tenant, projectID, provider))
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for k, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}

	return removed
}

// Register schedules Sweep on s.
func (c *Cache) Register(s *sweeper.Sweeper) error {
	return s.Add("secrets-cache", sweeper.DefaultSpec, func() {
		if removed := c.Sweep(); removed > 0 {
			c.logger.Debug("Swept expired secrets", "count", removed)
		}
	})
}
