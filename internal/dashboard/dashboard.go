// Package dashboard renders a live terminal view of the queue: status
// counts, the trailing metrics window, recent entries, worker logs, and
// filesystem activity. It polls and redraws rather than holding DB locks.
package dashboard

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/BnJam/hyperion/internal/queue"
	"github.com/BnJam/hyperion/internal/ui"
	"github.com/BnJam/hyperion/internal/watcher"
)

const (
	refreshInterval = time.Second
	entryLimit      = 8
	logLimit        = 6
)

// Config carries the context shown in the dashboard header.
type Config struct {
	DBPath      string
	WorkerCount int
	AgentCount  int
	// RecentFiles is shared with the fs monitor in integrated mode; nil in
	// standalone mode (file activity then comes from the journal).
	RecentFiles *watcher.RecentFiles
}

// Run redraws the dashboard every second until ctx is cancelled. When stdout
// is not a terminal the dashboard is skipped so batch runs stay quiet.
func Run(ctx context.Context, q *queue.Queue, cfg Config) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "dashboard requires a terminal; skipping.")
		return nil
	}

	output := termenv.NewOutput(os.Stdout)
	output.AltScreen()
	defer output.ExitAltScreen()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		output.ClearScreen()
		fmt.Print(Render(ctx, q, cfg))
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Render builds one full dashboard frame.
func Render(ctx context.Context, q *queue.Queue, cfg Config) string {
	var b strings.Builder

	title := fmt.Sprintf("hyperion · %s · workers=%d agents=%d",
		cfg.DBPath, cfg.WorkerCount, cfg.AgentCount)
	b.WriteString(ui.CategoryStyle.Render(title) + "\n")
	b.WriteString(ui.RenderMuted(ui.SeparatorLight) + "\n")

	metrics, err := q.Metrics(ctx, queue.DefaultMetricsWindowSecs)
	if err != nil {
		b.WriteString(ui.RenderFail("metrics unavailable: "+err.Error()) + "\n")
		return b.String()
	}
	deadLetters, _ := q.DeadLetterCount(ctx)

	counts := metrics.StatusCounts
	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  dead letters %d\n",
		ui.RenderMuted("pending"), fmt.Sprint(counts.Pending),
		ui.AccentStyle.Render("in_progress"), fmt.Sprint(counts.InProgress),
		ui.RenderPass("applied"), fmt.Sprint(counts.Applied),
		ui.RenderFail("failed"), fmt.Sprint(counts.Failed),
		deadLetters))

	b.WriteString(fmt.Sprintf("window %ds: throughput %s/min, dequeue %s, apply %s, contention %d\n",
		metrics.WindowSeconds,
		formatMetric(metrics.ThroughputPerMinute, ""),
		formatMetric(metrics.AvgDequeueLatencyMs, "ms"),
		formatMetric(metrics.AvgApplyDurationMs, "ms"),
		metrics.LeaseContentionEvents))

	b.WriteString("\n" + ui.CategoryStyle.Render("Recent entries") + "\n")
	entries, _ := q.RecentRecords(ctx, entryLimit)
	if len(entries) == 0 {
		b.WriteString(ui.RenderMuted("  (queue empty)") + "\n")
	}
	for _, entry := range entries {
		style := ui.StatusStyle(string(entry.Status))
		line := fmt.Sprintf("  #%-4d %-12s %-20s attempts=%d", entry.ID,
			style.Render(string(entry.Status)), entry.Payload.TaskID, entry.Attempts)
		if entry.LastError != "" {
			line += " " + ui.RenderFail(truncate(entry.LastError, 40))
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + ui.CategoryStyle.Render("Worker log") + "\n")
	logs, _ := q.RecentLogs(ctx, logLimit)
	for _, event := range logs {
		b.WriteString(fmt.Sprintf("  %s %-8s %s\n",
			ui.RenderMuted(time.Unix(event.CreatedAt, 0).Format("15:04:05")),
			event.Level, truncate(event.Message, 60)))
	}

	b.WriteString("\n" + ui.CategoryStyle.Render("File activity") + "\n")
	for _, line := range fileActivity(ctx, q, cfg) {
		b.WriteString("  " + ui.RenderMuted(truncate(line, 70)) + "\n")
	}

	if session, err := q.LatestAgentSession(ctx); err == nil && session != nil {
		b.WriteString("\n" + fmt.Sprintf("session %s model=%s last_used=%s\n",
			ui.AccentStyle.Render(session.ResumeID), session.Model,
			time.Unix(session.LastUsed, 0).Format("15:04:05")))
	}
	return b.String()
}

func fileActivity(ctx context.Context, q *queue.Queue, cfg Config) []string {
	if cfg.RecentFiles != nil {
		if paths := cfg.RecentFiles.Snapshot(); len(paths) > 0 {
			return paths
		}
	}
	events, _ := q.RecentFileEvents(ctx, logLimit)
	lines := make([]string, 0, len(events))
	for _, event := range events {
		lines = append(lines, fmt.Sprintf("%s %s", event.Event, event.Path))
	}
	if len(lines) == 0 {
		lines = []string{"(no recent file events)"}
	}
	return lines
}

func formatMetric(v *float64, suffix string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%s", *v, suffix)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
