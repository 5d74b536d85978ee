package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/queue"
	"github.com/BnJam/hyperion/internal/timeparsing"
)

var (
	cleanupTTLSeconds int64
	cleanupOlderThan  string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete terminal queue entries past their retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl := cleanupTTLSeconds
		if cleanupOlderThan != "" {
			now := time.Now()
			cutoff, err := timeparsing.ParseTimeExpression(cleanupOlderThan, now)
			if err != nil {
				return err
			}
			ttl = int64(now.Sub(cutoff).Seconds())
		}
		if ttl <= 0 {
			ttl = queue.DefaultAppliedRetentionSecs
		}
		deleted, err := q.CleanupStale(rootCtx, ttl)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d applied/failed entries older than %d seconds via cleanup.\n", deleted, ttl)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Int64Var(&cleanupTTLSeconds, "ttl-seconds", 0, "retention in seconds (default 7 days)")
	cleanupCmd.Flags().StringVar(&cleanupOlderThan, "older-than", "", "retention as a time expression (-2d, last monday)")
	rootCmd.AddCommand(cleanupCmd)
}
