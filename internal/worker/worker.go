// Package worker implements the pull-and-process loop: claim the oldest
// pending entry under a lease, validate it, apply it, run its checks, and
// settle the outcome. Every stage writes journal events that the metrics
// aggregator reads back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BnJam/hyperion/internal/apply"
	"github.com/BnJam/hyperion/internal/debug"
	"github.com/BnJam/hyperion/internal/queue"
	"github.com/BnJam/hyperion/internal/runner"
	"github.com/BnJam/hyperion/internal/telemetry"
	"github.com/BnJam/hyperion/internal/types"
	"github.com/BnJam/hyperion/internal/validation"
)

// Defaults mirror the CLI flag defaults.
const (
	DefaultLeaseSeconds   = 300
	DefaultPollIntervalMs = 500
	DefaultMaxAttempts    = 5
	DefaultWorkerID       = "worker-cli"

	progressInterval = 5 * time.Second
)

const workerScope = "github.com/BnJam/hyperion/worker"

// Config controls one worker loop.
type Config struct {
	WorkerID       string
	LeaseSeconds   int64
	PollIntervalMs int64
	RunChecks      bool
	MaxAttempts    int64
	WorkDir        string
	// Progress emits a periodic status line on stdout. Only one worker per
	// process should enable it.
	Progress bool
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.WorkerID == "" {
		out.WorkerID = DefaultWorkerID
	}
	if out.LeaseSeconds <= 0 {
		out.LeaseSeconds = DefaultLeaseSeconds
	}
	if out.PollIntervalMs <= 0 {
		out.PollIntervalMs = DefaultPollIntervalMs
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	return out
}

// Worker processes queue entries until its context is cancelled.
type Worker struct {
	queue   *queue.Queue
	applier *apply.Applier
	runner  *runner.Runner
	cfg     Config
}

// New returns a worker over q with cfg (zero fields take defaults).
func New(q *queue.Queue, cfg Config) *Worker {
	cfg = (&cfg).withDefaults()
	return &Worker{
		queue:   q,
		applier: apply.New(cfg.WorkDir),
		runner:  runner.New(cfg.WorkDir),
		cfg:     cfg,
	}
}

// Run loops until ctx is cancelled. The error is nil on clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	debug.Logf("worker %s started lease=%ds poll=%dms max_attempts=%d checks=%v",
		w.cfg.WorkerID, w.cfg.LeaseSeconds, w.cfg.PollIntervalMs, w.cfg.MaxAttempts, w.cfg.RunChecks)

	poll := time.Duration(w.cfg.PollIntervalMs) * time.Millisecond
	var nextProgress time.Time
	if w.cfg.Progress {
		nextProgress = time.Now().Add(progressInterval)
	}

	for {
		if err := ctx.Err(); err != nil {
			debug.Logf("worker %s shutting down", w.cfg.WorkerID)
			return nil
		}

		if w.cfg.Progress && !time.Now().Before(nextProgress) {
			w.printProgress(ctx)
			nextProgress = time.Now().Add(progressInterval)
		}

		processed, err := w.ProcessOne(ctx)
		if err != nil {
			// Storage-level trouble: report, back off one poll, keep going.
			fmt.Fprintf(os.Stderr, "worker %s: %v\n", w.cfg.WorkerID, err)
		}
		if !processed {
			select {
			case <-ctx.Done():
				debug.Logf("worker %s shutting down", w.cfg.WorkerID)
				return nil
			case <-time.After(poll):
			}
		}
	}
}

// ProcessOne claims and settles at most one entry. It reports whether an
// entry was processed; false with a nil error means the queue was empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	dequeueStart := time.Now()
	entry, err := w.queue.Dequeue(ctx, time.Duration(w.cfg.LeaseSeconds)*time.Second, w.cfg.WorkerID)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if entry == nil {
		return false, nil
	}
	dequeueLatencyMs := float64(time.Since(dequeueStart).Milliseconds())
	telemetry.RecordDequeue(ctx, w.cfg.WorkerID, dequeueLatencyMs)

	taskID := entry.Payload.TaskID
	ctx, span := telemetry.Tracer(workerScope).Start(ctx, "worker.process_entry",
		trace.WithAttributes(
			attribute.String("hyperion.worker_id", w.cfg.WorkerID),
			attribute.Int64("hyperion.queue_id", entry.ID),
			attribute.String("hyperion.task_id", taskID),
			attribute.Int64("hyperion.attempt", entry.Attempts),
		))
	defer span.End()
	_ = w.queue.LogEvent(ctx, entry.ID, taskID, "info", "dequeued", map[string]any{
		"worker_id": w.cfg.WorkerID,
		"attempt":   entry.Attempts,
	})
	_ = w.queue.LogEvent(ctx, entry.ID, taskID, "info", queue.EventDequeueMetrics, map[string]any{
		"dequeue_latency_ms": dequeueLatencyMs,
		"poll_interval_ms":   float64(w.cfg.PollIntervalMs),
	})

	if entry.Attempts > w.cfg.MaxAttempts {
		reason := fmt.Sprintf("max attempts reached (%d/%d)", entry.Attempts, w.cfg.MaxAttempts)
		debug.Logf("task %s shed: %s", taskID, reason)
		span.SetStatus(codes.Error, reason)
		return true, w.fail(ctx, entry, reason)
	}

	if result := validation.ValidateChangeRequest(&entry.Payload); !result.Valid {
		reason := fmt.Sprintf("validation errors: %v", result.Errors)
		debug.Logf("task %s invalid: %s", taskID, reason)
		span.SetStatus(codes.Error, reason)
		return true, w.fail(ctx, entry, reason)
	}

	applyStart := time.Now()
	if err := w.runApply(ctx, entry); err != nil {
		debug.Logf("task %s apply failed: %v", taskID, err)
		_ = w.queue.LogEvent(ctx, entry.ID, taskID, "error", "apply failed", applyFailureDetails(err))
		spanFail(span, err)
		return true, w.settleFailure(ctx, entry, err)
	}

	if w.cfg.RunChecks {
		if err := w.runVerification(ctx, entry); err != nil {
			debug.Logf("task %s checks failed: %v", taskID, err)
			_ = w.queue.LogEvent(ctx, entry.ID, taskID, "error", "checks failed", checkFailureDetails(err))
			spanFail(span, err)
			return true, w.settleFailure(ctx, entry, err)
		}
	}
	applyDurationMs := float64(time.Since(applyStart).Milliseconds())

	if err := w.queue.MarkApplied(ctx, entry.ID); err != nil {
		return true, fmt.Errorf("mark applied %d: %w", entry.ID, err)
	}
	telemetry.RecordApplied(ctx, w.cfg.WorkerID, applyDurationMs)
	_ = w.queue.LogEvent(ctx, entry.ID, taskID, "info", queue.EventApplied, map[string]any{
		"worker_id":         w.cfg.WorkerID,
		"apply_duration_ms": applyDurationMs,
	})
	debug.Logf("task %s applied in %.0fms", taskID, applyDurationMs)
	return true, nil
}

// runApply applies the payload under its own span.
func (w *Worker) runApply(ctx context.Context, entry *types.QueueEntry) error {
	ctx, span := telemetry.Tracer(workerScope).Start(ctx, "worker.apply",
		trace.WithAttributes(attribute.Int("hyperion.change_count", len(entry.Payload.Changes))))
	defer span.End()
	if err := w.applier.ApplyChangeRequest(ctx, &entry.Payload); err != nil {
		spanFail(span, err)
		return err
	}
	return nil
}

// runVerification runs the payload's checks under its own span.
func (w *Worker) runVerification(ctx context.Context, entry *types.QueueEntry) error {
	ctx, span := telemetry.Tracer(workerScope).Start(ctx, "worker.checks",
		trace.WithAttributes(attribute.Int("hyperion.check_count", len(entry.Payload.Checks))))
	defer span.End()
	if err := w.runner.RunChecks(ctx, entry.Payload.Checks); err != nil {
		spanFail(span, err)
		return err
	}
	return nil
}

func spanFail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// applyFailureDetails flattens an apply failure into journal details so the
// patch context that produced it survives alongside the dead letter.
func applyFailureDetails(err error) map[string]any {
	details := map[string]any{"error": err.Error()}
	var applyErr *apply.ApplyError
	if errors.As(err, &applyErr) {
		details["path"] = applyErr.Path
		details["operation"] = string(applyErr.Operation)
		details["patch_excerpt"] = applyErr.PatchExcerpt
	}
	return details
}

// checkFailureDetails captures the failing command and its output.
func checkFailureDetails(err error) map[string]any {
	details := map[string]any{"error": err.Error()}
	var checkErr *runner.CheckError
	if errors.As(err, &checkErr) {
		details["command"] = checkErr.Command
		details["stdout"] = checkErr.Stdout
		details["stderr"] = checkErr.Stderr
	}
	return details
}

// settleFailure retries while attempts remain, otherwise dead-letters.
func (w *Worker) settleFailure(ctx context.Context, entry *types.QueueEntry, cause error) error {
	if entry.Attempts >= w.cfg.MaxAttempts {
		return w.fail(ctx, entry, cause.Error())
	}
	if err := w.queue.MarkRetry(ctx, entry.ID, cause.Error()); err != nil {
		return fmt.Errorf("mark retry %d: %w", entry.ID, err)
	}
	telemetry.RecordRetried(ctx, w.cfg.WorkerID)
	_ = w.queue.LogEvent(ctx, entry.ID, entry.Payload.TaskID, "warn", "retry scheduled", map[string]any{
		"worker_id": w.cfg.WorkerID,
		"attempt":   entry.Attempts,
		"error":     cause.Error(),
	})
	return nil
}

func (w *Worker) fail(ctx context.Context, entry *types.QueueEntry, reason string) error {
	if err := w.queue.MarkFailed(ctx, entry.ID, reason); err != nil {
		return fmt.Errorf("mark failed %d: %w", entry.ID, err)
	}
	telemetry.RecordFailed(ctx, w.cfg.WorkerID)
	_ = w.queue.LogEvent(ctx, entry.ID, entry.Payload.TaskID, "error", "dead lettered", map[string]any{
		"worker_id": w.cfg.WorkerID,
		"error":     reason,
	})
	return nil
}

func (w *Worker) printProgress(ctx context.Context) {
	metrics, err := w.queue.Metrics(ctx, queue.DefaultMetricsWindowSecs)
	if err != nil {
		return
	}
	fmt.Println(FormatProgress(metrics))
}

// FormatProgress renders the one-line operator status summary.
func FormatProgress(m *types.QueueMetrics) string {
	return fmt.Sprintf(
		"[progress] pending=%d in_progress=%d applied=%d failed=%d throughput=%s/min avg_dequeue_latency=%sms avg_apply_duration=%sms lease_contention_events=%d",
		m.StatusCounts.Pending,
		m.StatusCounts.InProgress,
		m.StatusCounts.Applied,
		m.StatusCounts.Failed,
		formatAvg(m.ThroughputPerMinute),
		formatAvg(m.AvgDequeueLatencyMs),
		formatAvg(m.AvgApplyDurationMs),
		m.LeaseContentionEvents,
	)
}

func formatAvg(v *float64) string {
	if v == nil {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", *v)
}
