//go:build integration

package postgresql_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/stats/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestSink_RecordAndFinalize(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("flowrun_stats"),
		postgres.WithUsername("flowrun"),
		postgres.WithPassword("flowrun"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	sink, err := postgresql.NewSink(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() { _ = sink.Close() })

	now := time.Now().UTC()

	require.NoError(t, sink.RecordStep(ctx, "exec-1", models.StepRecord{
		NodeID: "start", NodeType: models.NodeTypeStart, Status: models.StepStatusSuccess,
		StartedAt: now, FinishedAt: now, Output: map[string]any{"ok": true},
	}))
	require.NoError(t, sink.RecordStep(ctx, "exec-1", models.StepRecord{
		NodeID: "logic", NodeType: models.NodeTypeLogic, Status: models.StepStatusError,
		StartedAt: now, FinishedAt: now, Error: "boom",
	}))
	require.NoError(t, sink.Finalize(ctx, "exec-1", models.ExecutionStatusFailed, map[string]any{"error": "boom"}, 12))

	steps, err := sink.Steps(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "start", steps[0].NodeID)
	assert.Equal(t, "boom", steps[1].Error)
}
