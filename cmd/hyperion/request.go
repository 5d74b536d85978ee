package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/request"
)

var (
	requestModel  string
	requestAgents int
)

var requestCmd = &cobra.Command{
	Use:   "request <file>",
	Short: "Decompose a task request and enqueue agent-produced changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enqueued, err := request.Handle(rootCtx, q, args[0], request.Options{
			Model:     requestModel,
			MaxAgents: requestAgents,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Processed request %s and enqueued %d change request(s)\n", args[0], enqueued)
		return nil
	},
}

func init() {
	requestCmd.Flags().StringVar(&requestModel, "model", "", "agent model (default gpt-5-mini)")
	requestCmd.Flags().IntVar(&requestAgents, "agents", 1, "concurrent agents (clamped to 1-3)")
	rootCmd.AddCommand(requestCmd)
}
