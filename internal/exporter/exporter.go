// Package exporter writes verification reports for external tooling.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BnJam/hyperion/internal/queue"
	"github.com/BnJam/hyperion/internal/types"
)

const reportName = "verification_report.json"

// Report is the on-disk verification snapshot.
type Report struct {
	GeneratedAt     int64              `json:"generated_at"`
	DBPath          string             `json:"db_path"`
	Metrics         types.QueueMetrics `json:"metrics"`
	DeadLetterCount int64              `json:"dead_letter_count"`
}

// WriteReport snapshots the trailing metrics window into
// <dir>/execution/verification_report.json and returns the written path.
func WriteReport(ctx context.Context, q *queue.Queue, dir string) (string, error) {
	metrics, err := q.Metrics(ctx, queue.DefaultMetricsWindowSecs)
	if err != nil {
		return "", fmt.Errorf("collect metrics: %w", err)
	}
	deadLetters, err := q.DeadLetterCount(ctx)
	if err != nil {
		return "", err
	}

	report := Report{
		GeneratedAt:     metrics.Timestamp,
		DBPath:          q.Store().Path(),
		Metrics:         *metrics,
		DeadLetterCount: deadLetters,
	}

	executionDir := filepath.Join(dir, "execution")
	if err := os.MkdirAll(executionDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", executionDir, err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(executionDir, reportName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
