// Package connection binds real-time executions to client push channels.
package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/sweeper"
)

// DefaultBindingTTL bounds how long a binding survives without its execution
// finishing.
const DefaultBindingTTL = 10 * time.Minute

var ErrBindingNotFound = errors.New("connection binding not found")

// BindingStore maps execution ids to connection ids. Implementations are
// safe for concurrent use.
type BindingStore interface {
	Put(ctx context.Context, binding models.ConnectionBinding) error
	Get(ctx context.Context, executionID string) (*models.ConnectionBinding, error)
	Delete(ctx context.Context, executionID string) error
	// DeleteByConnection drops every binding that targets connectionID and
	// returns how many were removed.
	DeleteByConnection(ctx context.Context, connectionID string) (int, error)
}

type memoryBinding struct {
	binding   models.ConnectionBinding
	expiresAt time.Time
}

// MemoryStore is a process-local BindingStore.
type MemoryStore struct {
	ttl      time.Duration
	now      func() time.Time
	mutex    sync.RWMutex
	bindings map[string]memoryBinding
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultBindingTTL
	}

	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		bindings: make(map[string]memoryBinding),
	}
}

func (s *MemoryStore) Put(_ context.Context, binding models.ConnectionBinding) error {
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = s.now().UTC()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.bindings[binding.ExecutionID] = memoryBinding{
		binding:   binding,
		expiresAt: s.now().Add(s.ttl),
	}

	return nil
}

func (s *MemoryStore) Get(_ context.Context, executionID string) (*models.ConnectionBinding, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, ok := s.bindings[executionID]
	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, ErrBindingNotFound
	}

	binding := entry.binding

	return &binding, nil
}

func (s *MemoryStore) Delete(_ context.Context, executionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.bindings, executionID)

	return nil
}

func (s *MemoryStore) DeleteByConnection(_ context.Context, connectionID string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0

	for executionID, entry := range s.bindings {
		if entry.binding.ConnectionID == connectionID {
			delete(s.bindings, executionID)

			removed++
		}
	}

	return removed, nil
}

// Sweep drops expired bindings and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0

	for executionID, entry := range s.bindings {
		if !now.Before(entry.expiresAt) {
			delete(s.bindings, executionID)

			removed++
		}
	}

	return removed
}

// Register schedules periodic sweeps of expired bindings.
func (s *MemoryStore) Register(sw *sweeper.Sweeper, logger *slog.Logger) error {
	return sw.Add("connection-bindings", sweeper.DefaultSpec, func() {
		if removed := s.Sweep(); removed > 0 {
			logger.Debug("Swept expired connection bindings", "removed", removed)
		}
	})
}
