package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/paveg/tabula/internal/config"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/progress"
	"github.com/paveg/tabula/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_ReportsMonotonic(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ProgressInterval = 0 // unthrottled

	var c testutil.ProgressRecorder
	m := progress.New("Scan", cfg, c.Func())
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		require.NoError(t, m.Checkpoint(ctx, i, 5))
	}
	m.Finish(5, 5)

	require.Len(t, c.Reports, 6)
	for i := 1; i < len(c.Reports); i++ {
		assert.Greater(t, c.Reports[i].Done, c.Reports[i-1].Done)
	}
	assert.InDelta(t, 1.0, c.Reports[5].Fraction(), 1e-9)
}

func TestMonitor_Throttled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ProgressInterval = time.Hour

	var c testutil.ProgressRecorder
	m := progress.New("Scan", cfg, c.Func())
	for i := int64(0); i < 100; i++ {
		require.NoError(t, m.Checkpoint(context.Background(), i, -1))
	}
	m.Finish(100, -1)

	require.Len(t, c.Reports, 2)
	assert.Equal(t, int64(100), c.Reports[1].Done)
	assert.Equal(t, float64(-1), c.Reports[1].Fraction())
}

func TestMonitor_Cancellation(t *testing.T) {
	cfg := config.NewConfig()
	cfg.CancelCheckInterval = 4

	m := progress.New("Scan", cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, m.Checkpoint(ctx, 3, 10), "not a check row")

	err := m.Checkpoint(ctx, 4, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, m.Check(ctx), context.Canceled)
}

func TestReport_Fraction(t *testing.T) {
	assert.Equal(t, 0.5, progress.Report{Done: 1, Total: 2}.Fraction())
	assert.Equal(t, 1.0, progress.Report{Done: 0, Total: 0}.Fraction())
}
