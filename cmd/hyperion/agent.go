package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/agent"
)

var agentModel string

var agentCmd = &cobra.Command{
	Use:   "agent <prompt>",
	Short: "Run a one-shot agent prompt and print the response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		harness := agent.Select(agentModel)
		response, err := harness.Run(rootCtx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(response)
		return nil
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentModel, "model", "", "agent model (default gpt-5-mini)")
	rootCmd.AddCommand(agentCmd)
}
