// Package coordinator runs the integrated stack: a pool of workers, the
// filesystem monitor, and the dashboard, sharing one queue until SIGINT.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/BnJam/hyperion/internal/dashboard"
	"github.com/BnJam/hyperion/internal/debug"
	"github.com/BnJam/hyperion/internal/queue"
	"github.com/BnJam/hyperion/internal/watcher"
	"github.com/BnJam/hyperion/internal/worker"
)

// Config sizes the integrated run.
type Config struct {
	DBPath         string
	WorkerCount    int
	AgentCount     int
	LeaseSeconds   int64
	PollIntervalMs int64
	MaxAttempts    int64
	RunChecks      bool
	WorkDir        string
	// Dashboard disables the terminal UI when false (headless runs).
	Dashboard bool
}

// Run starts workers, the fs monitor, and optionally the dashboard, then
// blocks until SIGINT/SIGTERM or the first component failure.
func Run(ctx context.Context, q *queue.Queue, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerCount := clamp(cfg.WorkerCount, 1, 3)
	agentCount := clamp(cfg.AgentCount, 1, 3)
	debug.Logf("integrated run: workers=%d agents=%d db=%s", workerCount, agentCount, cfg.DBPath)

	var recent watcher.RecentFiles
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < workerCount; i++ {
		w := worker.New(q, worker.Config{
			WorkerID:       fmt.Sprintf("worker-%d", i+1),
			LeaseSeconds:   cfg.LeaseSeconds,
			PollIntervalMs: cfg.PollIntervalMs,
			MaxAttempts:    cfg.MaxAttempts,
			RunChecks:      cfg.RunChecks,
			WorkDir:        cfg.WorkDir,
			Progress:       i == 0 && !cfg.Dashboard,
		})
		g.Go(func() error { return w.Run(ctx) })
	}

	root := cfg.WorkDir
	if root == "" {
		root = "."
	}
	g.Go(func() error { return watcher.Monitor(ctx, q, root, &recent) })

	if cfg.Dashboard {
		g.Go(func() error {
			return dashboard.Run(ctx, q, dashboard.Config{
				DBPath:      cfg.DBPath,
				WorkerCount: workerCount,
				AgentCount:  agentCount,
				RecentFiles: &recent,
			})
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
