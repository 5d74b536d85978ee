package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var markFailedError string

var markAppliedCmd = &cobra.Command{
	Use:   "mark-applied <id>",
	Short: "Mark a queue entry as applied",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid queue id %q", args[0])
		}
		if err := q.MarkApplied(rootCtx, id); err != nil {
			return err
		}
		fmt.Printf("Marked %d as applied\n", id)
		return nil
	},
}

var markFailedCmd = &cobra.Command{
	Use:   "mark-failed <id>",
	Short: "Mark a queue entry as failed and archive a dead letter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid queue id %q", args[0])
		}
		if err := q.MarkFailed(rootCtx, id, markFailedError); err != nil {
			return err
		}
		fmt.Printf("Marked %d as failed\n", id)
		return nil
	},
}

func init() {
	markFailedCmd.Flags().StringVar(&markFailedError, "error", "", "failure reason recorded on the dead letter")
	rootCmd.AddCommand(markAppliedCmd)
	rootCmd.AddCommand(markFailedCmd)
}
