// Package doctor runs store diagnostics: schema verification, WAL
// checkpointing, and retention accounting for rows past their useful life.
package doctor

import (
	"context"
	"fmt"
	"io"

	"github.com/BnJam/hyperion/internal/queue"
)

// Report summarizes one diagnostics run.
type Report struct {
	StaleApplied    int64 `json:"stale_applied_rows"`
	StaleDeadLetter int64 `json:"stale_dead_letters"`
}

// Run verifies the schema, checkpoints the WAL, counts rows past retention,
// and writes the operator summary to out. A journal event records the run.
func Run(ctx context.Context, q *queue.Queue, out io.Writer) (*Report, error) {
	store := q.Store()
	if err := store.VerifySchema(ctx); err != nil {
		return nil, fmt.Errorf("verify schema: %w", err)
	}
	if err := store.WALCheckpoint(ctx); err != nil {
		return nil, fmt.Errorf("wal checkpoint: %w", err)
	}

	staleApplied, err := q.CountAppliedOlderThan(ctx, queue.DefaultAppliedRetentionSecs)
	if err != nil {
		return nil, err
	}
	staleDeadLetters, err := q.CountDeadLettersOlderThan(ctx, queue.DeadLetterRetentionSecs)
	if err != nil {
		return nil, err
	}

	_ = q.LogEvent(ctx, 0, "doctor", "info", "diagnostics passed", map[string]any{
		"applied_retention_secs":     queue.DefaultAppliedRetentionSecs,
		"dead_letter_retention_secs": queue.DeadLetterRetentionSecs,
		"stale_applied_rows":         staleApplied,
		"stale_dead_letters":         staleDeadLetters,
	})

	fmt.Fprintln(out, "Queue diagnostics: schema OK")
	fmt.Fprintf(out, "- applied rows older than %ds: %d\n", queue.DefaultAppliedRetentionSecs, staleApplied)
	fmt.Fprintf(out, "- dead letters older than %ds: %d\n", queue.DeadLetterRetentionSecs, staleDeadLetters)

	return &Report{StaleApplied: staleApplied, StaleDeadLetter: staleDeadLetters}, nil
}
