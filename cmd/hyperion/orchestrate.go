package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/orchestrator"
	"github.com/BnJam/hyperion/internal/types"
)

var orchestrateOut string

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate <file>",
	Short: "Decompose a task request into task assignments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contents, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var taskRequest types.TaskRequest
		if err := json.Unmarshal(contents, &taskRequest); err != nil {
			return fmt.Errorf("parse task request: %w", err)
		}
		assignments := orchestrator.Decompose(&taskRequest)
		payload, err := json.MarshalIndent(assignments, "", "  ")
		if err != nil {
			return err
		}
		if orchestrateOut != "" {
			return os.WriteFile(orchestrateOut, payload, 0o644)
		}
		fmt.Println(string(payload))
		return nil
	},
}

func init() {
	orchestrateCmd.Flags().StringVar(&orchestrateOut, "out", "", "write assignments to this file instead of stdout")
	rootCmd.AddCommand(orchestrateCmd)
}
