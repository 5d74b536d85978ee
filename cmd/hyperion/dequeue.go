package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var dequeueLeaseSeconds int64

var dequeueCmd = &cobra.Command{
	Use:   "dequeue",
	Short: "Claim the oldest pending change request under a lease",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := q.Dequeue(rootCtx, time.Duration(dequeueLeaseSeconds)*time.Second, "cli")
		if err != nil {
			return err
		}
		if entry == nil {
			fmt.Println("No pending change requests")
			return nil
		}
		fmt.Printf("Dequeued %d from %s (attempt %d)\n",
			entry.ID, entry.Payload.TaskID, entry.Attempts)
		return nil
	},
}

func init() {
	dequeueCmd.Flags().Int64Var(&dequeueLeaseSeconds, "lease-seconds", 300, "lease duration for the claim")
	rootCmd.AddCommand(dequeueCmd)
}
