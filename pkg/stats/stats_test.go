package stats

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := NewMemorySink()

	_, ok := sink.Log("exec-1")
	assert.False(t, ok)

	require.NoError(t, sink.RecordStep(ctx, "exec-1", models.StepRecord{NodeID: "a", Status: models.StepStatusSuccess}))
	require.NoError(t, sink.RecordStep(ctx, "exec-1", models.StepRecord{NodeID: "b", Status: models.StepStatusError}))
	require.NoError(t, sink.Finalize(ctx, "exec-1", models.ExecutionStatusFailed, "boom", 7))

	log, ok := sink.Log("exec-1")
	require.True(t, ok)
	assert.Len(t, log.Steps, 2)
	assert.Equal(t, models.ExecutionStatusFailed, log.Status)
	assert.EqualValues(t, 7, log.DurationMs)
	assert.True(t, log.Finalized)

	log.Steps[0].NodeID = "mutated"

	again, _ := sink.Log("exec-1")
	assert.Equal(t, "a", again.Steps[0].NodeID)
}

func TestNoopAndLogSinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, sink := range []Sink{Noop{}, NewLogSink(slog.Default())} {
		require.NoError(t, sink.RecordStep(ctx, "exec-1", models.StepRecord{NodeID: "a"}))
		require.NoError(t, sink.Finalize(ctx, "exec-1", models.ExecutionStatusCompleted, nil, 1))
	}
}
