// Package sweeper runs periodic housekeeping jobs (expiring bindings, cache
// entries and rate-limit windows) on a cron scheduler.
package sweeper

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSpec runs a job every minute.
const DefaultSpec = "@every 1m"

// Sweeper owns one cron scheduler shared by several housekeeping jobs.
type Sweeper struct {
	logger  *slog.Logger
	cron    *cron.Cron
	mutex   sync.Mutex
	jobs    map[string]cron.EntryID
	started bool
}

// New creates a stopped sweeper.
func New(logger *slog.Logger) *Sweeper {
	return &Sweeper{
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		jobs: make(map[string]cron.EntryID),
	}
}

// Add schedules job under name. spec accepts standard cron expressions and
// descriptors such as "@every 30s". Re-adding a name replaces the job.
func (s *Sweeper) Add(name, spec string, job func()) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
	}

	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to add sweep job %s: %w", name, err)
	}

	s.jobs[name] = id

	s.logger.Debug("Added sweep job", "job", name, "spec", spec)

	return nil
}

// Start begins running jobs. Calling Start twice is a no-op.
func (s *Sweeper) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return
	}

	s.cron.Start()
	s.started = true

	s.logger.Info("Sweeper started", "jobs", len(s.jobs))
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Sweeper) Stop() {
	s.mutex.Lock()
	started := s.started
	s.started = false
	s.mutex.Unlock()

	if !started {
		return
	}

	<-s.cron.Stop().Done()

	s.logger.Info("Sweeper stopped")
}
