// Package ratelimit admits or rejects trigger invocations per project using
// fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukex/flowrun/pkg/sweeper"
)

// DefaultWindow is the admission window of a project's rate limit.
const DefaultWindow = time.Minute

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts invocations per key. A limit of zero or less always admits.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (Decision, error)
}

// Key scopes a counter to one project.
func Key(tenant, projectID string) string {
	return tenant + "/" + projectID
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process memory.
type MemoryLimiter struct {
	window  time.Duration
	now     func() time.Time
	mutex   sync.Mutex
	windows map[string]*window
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(windowSize time.Duration) *MemoryLimiter {
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}

	return &MemoryLimiter{
		window:  windowSize,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.windows[key] = w
	}

	w.count++

	return decide(w.count, limit, w.resetAt), nil
}

// Sweep drops expired windows.
func (l *MemoryLimiter) Sweep() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()
	removed := 0

	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)

			removed++
		}
	}

	return removed
}

func (l *MemoryLimiter) Register(sw *sweeper.Sweeper, logger *slog.Logger) error {
	return sw.Add("ratelimit-windows", sweeper.DefaultSpec, func() {
		if removed := l.Sweep(); removed > 0 {
			logger.Debug("Swept rate limit windows", "removed", removed)
		}
	})
}

// RedisLimiter shares counters across replicas with INCR and EXPIRE.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client redis.UniversalClient, prefix string, windowSize time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "flowrun:"
	}

	if windowSize <= 0 {
		windowSize = DefaultWindow
	}

	return &RedisLimiter{client: client, prefix: prefix, window: windowSize}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	now := time.Now()
	slot := now.Truncate(l.window)
	redisKey := fmt.Sprintf("%sratelimit:%s:%d", l.prefix, key, slot.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("failed to count invocation: %w", err)
	}

	return decide(int(incr.Val()), limit, slot.Add(l.window)), nil
}

func decide(count, limit int, resetAt time.Time) Decision {
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
}
