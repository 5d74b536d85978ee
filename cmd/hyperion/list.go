package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/timeparsing"
	"github.com/BnJam/hyperion/internal/types"
)

var (
	listStatus string
	listSince  string
	listLimit  int
	listFormat string
)

var listCmd = &cobra.Command{
	Use:   "list [status]",
	Short: "List queue entries by status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			listStatus = args[0]
		}
		status, err := types.ParseStatus(listStatus)
		if err != nil {
			return err
		}
		entries, err := q.List(rootCtx, status)
		if err != nil {
			return err
		}
		if listSince != "" {
			cutoff, err := timeparsing.ParseTimeExpression(listSince, time.Now())
			if err != nil {
				return err
			}
			entries = filterSince(entries, cutoff.Unix())
		}
		if listLimit > 0 && len(entries) > listLimit {
			entries = entries[:listLimit]
		}
		if listFormat == "json" {
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		for _, entry := range entries {
			lease := "none"
			if entry.LeasedUntil != nil {
				lease = fmt.Sprint(*entry.LeasedUntil)
			}
			fmt.Printf("%d %s %s attempts=%d lease_until=%s\n",
				entry.ID, entry.Status, entry.Payload.TaskID, entry.Attempts, lease)
		}
		return nil
	},
}

func filterSince(entries []types.QueueEntry, cutoff int64) []types.QueueEntry {
	out := entries[:0]
	for _, entry := range entries {
		if entry.CreatedAt >= cutoff {
			out = append(out, entry)
		}
	}
	return out
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "pending", "status filter (pending, in_progress, applied, failed)")
	listCmd.Flags().StringVar(&listSince, "since", "", "only entries created after this time (-2d, yesterday, RFC3339)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum entries to show (0 = all)")
	listCmd.Flags().StringVar(&listFormat, "format", "", "output format (json)")
	rootCmd.AddCommand(listCmd)
}
