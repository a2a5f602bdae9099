package sweeper

import (
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RunsJobs(t *testing.T) {
	t.Parallel()

	s := New(slog.Default())

	var runs atomic.Int32

	require.NoError(t, s.Add("count", "@every 1s", func() { runs.Add(1) }))

	s.Start()
	s.Start()

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestSweeper_InvalidSpec(t *testing.T) {
	t.Parallel()

	s := New(slog.Default())

	err := s.Add("bad", "not a spec", func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestSweeper_ReplaceJob(t *testing.T) {
	t.Parallel()

	s := New(slog.Default())

	require.NoError(t, s.Add("job", "@every 1m", func() {}))
	require.NoError(t, s.Add("job", "@every 2m", func() {}))

	assert.Len(t, s.jobs, 1)
	assert.Len(t, s.cron.Entries(), 1)
}
