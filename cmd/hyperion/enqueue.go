package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/types"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <file>",
	Short: "Enqueue a change request from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contents, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var request types.ChangeRequest
		if err := json.Unmarshal(contents, &request); err != nil {
			return fmt.Errorf("parse change request: %w", err)
		}
		id, err := q.Enqueue(rootCtx, &request)
		if err != nil {
			return err
		}
		fmt.Printf("Enqueued change request %d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}
