// Package stats records per-step audit entries and execution outcomes.
package stats

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
)

// Sink receives audit records. Callers treat every error as best effort and
// never abort an execution because of it.
type Sink interface {
	RecordStep(ctx context.Context, executionLogID string, step models.StepRecord) error
	Finalize(ctx context.Context, executionLogID string, status models.ExecutionStatus, response any, durationMs int64) error
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordStep(context.Context, string, models.StepRecord) error { return nil }

func (Noop) Finalize(context.Context, string, models.ExecutionStatus, any, int64) error { return nil }

// LogSink writes records as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordStep(ctx context.Context, executionLogID string, step models.StepRecord) error {
	s.logger.InfoContext(ctx, "Step recorded",
		"execution_id", executionLogID,
		"node_id", step.NodeID,
		"node_type", step.NodeType,
		"status", step.Status,
		"duration_ms", step.DurationMs,
		"error", step.Error,
	)

	return nil
}

func (s *LogSink) Finalize(
	ctx context.Context,
	executionLogID string,
	status models.ExecutionStatus,
	_ any,
	durationMs int64,
) error {
	s.logger.InfoContext(ctx, "Execution finalized",
		"execution_id", executionLogID,
		"status", status,
		"duration_ms", durationMs,
	)

	return nil
}

// ExecutionLog is what a MemorySink keeps per execution.
type ExecutionLog struct {
	Steps      []models.StepRecord
	Status     models.ExecutionStatus
	Response   any
	DurationMs int64
	Finalized  bool
}

// MemorySink keeps records in memory, for development and tests.
type MemorySink struct {
	mutex sync.Mutex
	logs  map[string]*ExecutionLog
}

func NewMemorySink() *MemorySink {
	return &MemorySink{logs: make(map[string]*ExecutionLog)}
}

func (s *MemorySink) RecordStep(_ context.Context, executionLogID string, step models.StepRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	log := s.get(executionLogID)
	log.Steps = append(log.Steps, step)

	return nil
}

func (s *MemorySink) Finalize(
	_ context.Context,
	executionLogID string,
	status models.ExecutionStatus,
	response any,
	durationMs int64,
) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	log := s.get(executionLogID)
	log.Status = status
	log.Response = response
	log.DurationMs = durationMs
	log.Finalized = true

	return nil
}

// Log returns a copy of the execution log, or false when nothing was recorded.
func (s *MemorySink) Log(executionLogID string) (ExecutionLog, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	log, ok := s.logs[executionLogID]
	if !ok {
		return ExecutionLog{}, false
	}

	out := *log
	out.Steps = append([]models.StepRecord(nil), log.Steps...)

	return out, true
}

func (s *MemorySink) get(executionLogID string) *ExecutionLog {
	log, ok := s.logs[executionLogID]
	if !ok {
		log = &ExecutionLog{}
		s.logs[executionLogID] = log
	}

	return log
}
