// Command hyperion is a durable change queue for multi-agent code
// orchestration: agents enqueue change requests, leased workers apply and
// verify them, and the journal feeds live metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/config"
	"github.com/BnJam/hyperion/internal/coordinator"
	"github.com/BnJam/hyperion/internal/debug"
	"github.com/BnJam/hyperion/internal/queue"
	"github.com/BnJam/hyperion/internal/storage"
	"github.com/BnJam/hyperion/internal/telemetry"
)

const version = "0.1.0"

var (
	dbPath      string
	verboseFlag bool

	cfg   *config.Config
	store *storage.Store
	q     *queue.Queue

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:     "hyperion",
	Short:   "Durable change queue for multi-agent code orchestration",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug.SetVerbose(verboseFlag)
		rootCtx, rootCancel = context.WithCancel(context.Background())

		var err error
		cfg, err = config.Load("")
		if err != nil {
			return err
		}
		if dbPath == "" {
			dbPath = cfg.DBPath
		}

		if err := telemetry.Init(rootCtx, "hyperion", version); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		}

		store, err = storage.Open(rootCtx, dbPath)
		if err != nil {
			return err
		}
		q = queue.New(store)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()
		if rootCancel != nil {
			rootCancel()
		}
	},
	// Bare `hyperion` runs the integrated stack with the defaults.
	RunE: func(cmd *cobra.Command, args []string) error {
		return coordinator.Run(rootCtx, q, coordinator.Config{
			DBPath:         dbPath,
			WorkerCount:    cfg.WorkerCount,
			AgentCount:     cfg.AgentCount,
			LeaseSeconds:   cfg.LeaseSeconds,
			PollIntervalMs: cfg.PollIntervalMs,
			MaxAttempts:    cfg.MaxAttempts,
			Dashboard:      true,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the queue database (default hyperion.db)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable diagnostic output regardless of HYPERION_LOG")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
