package main

import (
	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/coordinator"
)

var (
	runWorkers   int
	runAgents    int
	runChecks    bool
	runWorkDir   string
	runNoDash    bool
	runLease     int64
	runPoll      int64
	runMaxRetry  int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the integrated stack: workers, fs monitor, and dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return coordinator.Run(rootCtx, q, coordinator.Config{
			DBPath:         dbPath,
			WorkerCount:    runWorkers,
			AgentCount:     runAgents,
			LeaseSeconds:   runLease,
			PollIntervalMs: runPoll,
			MaxAttempts:    runMaxRetry,
			RunChecks:      runChecks,
			WorkDir:        runWorkDir,
			Dashboard:      !runNoDash,
		})
	},
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 3, "worker count (clamped to 1-3)")
	runCmd.Flags().IntVar(&runAgents, "agents", 3, "agent count (clamped to 1-3)")
	runCmd.Flags().BoolVar(&runChecks, "run-checks", false, "run verification checks after applying")
	runCmd.Flags().StringVar(&runWorkDir, "work-dir", "", "working tree for patches and checks")
	runCmd.Flags().BoolVar(&runNoDash, "no-dashboard", false, "headless mode: progress line instead of dashboard")
	runCmd.Flags().Int64Var(&runLease, "lease-seconds", 300, "lease duration per claim")
	runCmd.Flags().Int64Var(&runPoll, "poll-interval-ms", 500, "idle poll interval")
	runCmd.Flags().Int64Var(&runMaxRetry, "max-attempts", 5, "attempts before dead-lettering")
	rootCmd.AddCommand(runCmd)
}
