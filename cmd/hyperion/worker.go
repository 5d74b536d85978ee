package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/worker"
)

var (
	workerID        string
	workerLease     int64
	workerPoll      int64
	workerRunChecks bool
	workerMaxRetry  int64
	workerWorkDir   string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a single worker loop until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		w := worker.New(q, worker.Config{
			WorkerID:       workerID,
			LeaseSeconds:   workerLease,
			PollIntervalMs: workerPoll,
			RunChecks:      workerRunChecks,
			MaxAttempts:    workerMaxRetry,
			WorkDir:        workerWorkDir,
			Progress:       true,
		})
		return w.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerID, "worker-id", worker.DefaultWorkerID, "lease owner identity")
	workerCmd.Flags().Int64Var(&workerLease, "lease-seconds", worker.DefaultLeaseSeconds, "lease duration per claim")
	workerCmd.Flags().Int64Var(&workerPoll, "poll-interval-ms", worker.DefaultPollIntervalMs, "idle poll interval")
	workerCmd.Flags().BoolVar(&workerRunChecks, "run-checks", false, "run verification checks after applying")
	workerCmd.Flags().Int64Var(&workerMaxRetry, "max-attempts", worker.DefaultMaxAttempts, "attempts before dead-lettering")
	workerCmd.Flags().StringVar(&workerWorkDir, "work-dir", "", "working tree for patches and checks")
	rootCmd.AddCommand(workerCmd)
}
