package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/types"
	"github.com/BnJam/hyperion/internal/validation"
)

var validateChangeCmd = &cobra.Command{
	Use:   "validate-change <file>",
	Short: "Validate a change request file without enqueueing it",
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
		result := validation.ValidateChangeRequest(&request)
		if result.Valid {
			fmt.Println("valid")
			return nil
		}
		fmt.Println("invalid")
		for _, e := range result.Errors {
			fmt.Printf("- %s\n", e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateChangeCmd)
}
