package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BnJam/hyperion/internal/types"
)

func TestMetricsEmptyWindow(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	metrics, err := q.Metrics(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(60), metrics.WindowSeconds)
	assert.Nil(t, metrics.AvgDequeueLatencyMs)
	assert.Nil(t, metrics.AvgApplyDurationMs)
	assert.Nil(t, metrics.AvgPollIntervalMs)
	assert.Nil(t, metrics.ThroughputPerMinute)
	assert.Zero(t, metrics.LeaseContentionEvents)
}

func TestMetricsAggregatesWindow(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	id, err := q.Enqueue(ctx, testRequest("T1"))
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Minute, "w")
	require.NoError(t, err)
	require.NoError(t, q.MarkApplied(ctx, id))

	// Two dequeue samples: one contended (latency > poll interval), one not.
	require.NoError(t, q.LogEvent(ctx, id, "T1", "info", EventDequeueMetrics,
		map[string]any{"dequeue_latency_ms": 800.0, "poll_interval_ms": 500.0}))
	require.NoError(t, q.LogEvent(ctx, id, "T1", "info", EventDequeueMetrics,
		map[string]any{"dequeue_latency_ms": 200.0, "poll_interval_ms": 500.0}))
	require.NoError(t, q.LogEvent(ctx, id, "T1", "info", EventApplied,
		map[string]any{"apply_duration_ms": 40.0}))

	metrics, err := q.Metrics(ctx, 60)
	require.NoError(t, err)

	assert.Equal(t, int64(1), metrics.StatusCounts.Applied)
	require.NotNil(t, metrics.AvgDequeueLatencyMs)
	assert.InDelta(t, 500.0, *metrics.AvgDequeueLatencyMs, 0.01)
	require.NotNil(t, metrics.AvgPollIntervalMs)
	assert.InDelta(t, 500.0, *metrics.AvgPollIntervalMs, 0.01)
	require.NotNil(t, metrics.AvgApplyDurationMs)
	assert.InDelta(t, 40.0, *metrics.AvgApplyDurationMs, 0.01)
	require.NotNil(t, metrics.ThroughputPerMinute)
	assert.InDelta(t, 1.0, *metrics.ThroughputPerMinute, 0.01)
	assert.Equal(t, int64(1), metrics.LeaseContentionEvents)
}

func TestMetricsExcludesEventsOutsideWindow(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	base := time.Now()
	q.SetClock(func() time.Time { return base.Add(-10 * time.Minute) })
	require.NoError(t, q.LogEvent(ctx, 0, "T1", "info", EventApplied,
		map[string]any{"apply_duration_ms": 40.0}))

	q.SetClock(func() time.Time { return base })
	metrics, err := q.Metrics(ctx, 60)
	require.NoError(t, err)
	assert.Nil(t, metrics.ThroughputPerMinute, "stale events must not count")
}

func TestMetricsDefaultWindow(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	metrics, err := q.Metrics(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMetricsWindowSecs, metrics.WindowSeconds)
}

func TestStatusCounts(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, testRequest("T"))
		require.NoError(t, err)
	}
	entry, err := q.Dequeue(ctx, time.Minute, "w")
	require.NoError(t, err)
	require.NotNil(t, entry)

	counts, err := q.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCounts{Pending: 2, InProgress: 1}, counts)
}
