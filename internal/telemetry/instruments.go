package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// queueMetrics holds lazily-initialized OTel instruments for queue operations.
var queueMetrics struct {
	dequeues       metric.Int64Counter
	applied        metric.Int64Counter
	failed         metric.Int64Counter
	retried        metric.Int64Counter
	dequeueLatency metric.Float64Histogram
	applyDuration  metric.Float64Histogram
}

var queueMetricsOnce sync.Once

func initQueueMetrics() {
	m := Meter(instrumentationScope + "/queue")
	queueMetrics.dequeues, _ = m.Int64Counter("hyperion.queue.dequeues",
		metric.WithDescription("Queue entries claimed by workers"),
		metric.WithUnit("{entry}"),
	)
	queueMetrics.applied, _ = m.Int64Counter("hyperion.queue.applied",
		metric.WithDescription("Queue entries applied successfully"),
		metric.WithUnit("{entry}"),
	)
	queueMetrics.failed, _ = m.Int64Counter("hyperion.queue.failed",
		metric.WithDescription("Queue entries moved to the dead letter archive"),
		metric.WithUnit("{entry}"),
	)
	queueMetrics.retried, _ = m.Int64Counter("hyperion.queue.retried",
		metric.WithDescription("Queue entries returned to pending for retry"),
		metric.WithUnit("{entry}"),
	)
	queueMetrics.dequeueLatency, _ = m.Float64Histogram("hyperion.queue.dequeue.latency",
		metric.WithDescription("Time a worker spent claiming an entry in milliseconds"),
		metric.WithUnit("ms"),
	)
	queueMetrics.applyDuration, _ = m.Float64Histogram("hyperion.queue.apply.duration",
		metric.WithDescription("Apply plus check duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// RecordDequeue counts one claim and its latency for the given worker.
func RecordDequeue(ctx context.Context, workerID string, latencyMs float64) {
	queueMetricsOnce.Do(initQueueMetrics)
	attrs := metric.WithAttributes(attribute.String("hyperion.worker_id", workerID))
	queueMetrics.dequeues.Add(ctx, 1, attrs)
	queueMetrics.dequeueLatency.Record(ctx, latencyMs, attrs)
}

// RecordApplied counts one successful apply and its duration.
func RecordApplied(ctx context.Context, workerID string, durationMs float64) {
	queueMetricsOnce.Do(initQueueMetrics)
	attrs := metric.WithAttributes(attribute.String("hyperion.worker_id", workerID))
	queueMetrics.applied.Add(ctx, 1, attrs)
	queueMetrics.applyDuration.Record(ctx, durationMs, attrs)
}

// RecordFailed counts one terminal failure.
func RecordFailed(ctx context.Context, workerID string) {
	queueMetricsOnce.Do(initQueueMetrics)
	queueMetrics.failed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("hyperion.worker_id", workerID)))
}

// RecordRetried counts one retry hand-back.
func RecordRetried(ctx context.Context, workerID string) {
	queueMetricsOnce.Do(initQueueMetrics)
	queueMetrics.retried.Add(ctx, 1,
		metric.WithAttributes(attribute.String("hyperion.worker_id", workerID)))
}
