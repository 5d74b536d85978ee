package queue

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/BnJam/hyperion/internal/storage"
	"github.com/BnJam/hyperion/internal/types"
)

// DefaultMetricsWindowSecs is the trailing window used when the caller does
// not specify one.
const DefaultMetricsWindowSecs int64 = 60

// Event messages the worker writes and the aggregator reads back. The journal
// is the only channel between them.
const (
	EventDequeueMetrics = "dequeue_metrics"
	EventApplied        = "applied"
)

// dequeueMetricsDetails is the details payload of a dequeue_metrics event.
type dequeueMetricsDetails struct {
	DequeueLatencyMs float64 `json:"dequeue_latency_ms"`
	PollIntervalMs   float64 `json:"poll_interval_ms"`
}

// appliedDetails is the details payload of an applied event.
type appliedDetails struct {
	ApplyDurationMs float64 `json:"apply_duration_ms"`
}

// StatusCounts runs a live census of the queue.
func (q *Queue) StatusCounts(ctx context.Context) (types.StatusCounts, error) {
	var counts types.StatusCounts
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT status, COUNT(*) FROM change_queue GROUP BY status`)
	if err != nil {
		return counts, storage.WrapDBError("status counts", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return counts, storage.WrapDBError("scan status count", err)
		}
		switch types.Status(status) {
		case types.StatusPending:
			counts.Pending = count
		case types.StatusInProgress:
			counts.InProgress = count
		case types.StatusApplied:
			counts.Applied = count
		case types.StatusFailed:
			counts.Failed = count
		}
	}
	return counts, rows.Err()
}

// Metrics aggregates the trailing window of journal events into queue
// metrics: latency and duration averages, throughput, and the count of
// samples where dequeue latency exceeded the poll interval (lease
// contention events).
func (q *Queue) Metrics(ctx context.Context, windowSeconds int64) (*types.QueueMetrics, error) {
	if windowSeconds <= 0 {
		windowSeconds = DefaultMetricsWindowSecs
	}
	now := q.now().Unix()
	cutoff := now - windowSeconds

	counts, err := q.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}

	metrics := &types.QueueMetrics{
		WindowSeconds: windowSeconds,
		StatusCounts:  counts,
		Timestamp:     now,
	}

	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT message, details FROM queue_logs
		 WHERE message IN (?, ?) AND created_at >= ? AND details IS NOT NULL`,
		EventDequeueMetrics, EventApplied, cutoff)
	if err != nil {
		return nil, storage.WrapDBError("metrics window", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		dequeueLatencySum float64
		pollIntervalSum   float64
		dequeueSamples    int64
		applyDurationSum  float64
		appliedCount      int64
	)
	for rows.Next() {
		var message string
		var details sql.NullString
		if err := rows.Scan(&message, &details); err != nil {
			return nil, storage.WrapDBError("scan metrics event", err)
		}
		if !details.Valid {
			continue
		}
		switch message {
		case EventDequeueMetrics:
			var d dequeueMetricsDetails
			if err := json.Unmarshal([]byte(details.String), &d); err != nil {
				continue // malformed samples are skipped, not fatal
			}
			dequeueSamples++
			dequeueLatencySum += d.DequeueLatencyMs
			pollIntervalSum += d.PollIntervalMs
			if d.DequeueLatencyMs > d.PollIntervalMs {
				metrics.LeaseContentionEvents++
			}
		case EventApplied:
			var d appliedDetails
			if err := json.Unmarshal([]byte(details.String), &d); err != nil {
				continue
			}
			appliedCount++
			applyDurationSum += d.ApplyDurationMs
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("metrics rows", err)
	}

	if dequeueSamples > 0 {
		avgLatency := dequeueLatencySum / float64(dequeueSamples)
		avgPoll := pollIntervalSum / float64(dequeueSamples)
		metrics.AvgDequeueLatencyMs = &avgLatency
		metrics.AvgPollIntervalMs = &avgPoll
	}
	if appliedCount > 0 {
		avgApply := applyDurationSum / float64(appliedCount)
		throughput := float64(appliedCount) * 60.0 / float64(windowSeconds)
		metrics.AvgApplyDurationMs = &avgApply
		metrics.ThroughputPerMinute = &throughput
	}
	return metrics, nil
}
