package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/apply"
	"github.com/BnJam/hyperion/internal/runner"
	"github.com/BnJam/hyperion/internal/types"
	"github.com/BnJam/hyperion/internal/validation"
)

var (
	applyRunChecks bool
	applyWorkDir   string
)

var applyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Validate and apply a change request file directly",
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
		if result := validation.ValidateChangeRequest(&request); !result.Valid {
			return fmt.Errorf("invalid change request: %v", result.Errors)
		}
		if err := apply.New(applyWorkDir).ApplyChangeRequest(rootCtx, &request); err != nil {
			return err
		}
		if applyRunChecks {
			if err := runner.New(applyWorkDir).RunChecks(rootCtx, request.Checks); err != nil {
				return err
			}
		}
		fmt.Println("applied")
		return nil
	},
}

func init() {
	applyCmd.Flags().BoolVar(&applyRunChecks, "run-checks", false, "run verification checks after applying")
	applyCmd.Flags().StringVar(&applyWorkDir, "work-dir", "", "working tree for patches and checks")
	rootCmd.AddCommand(applyCmd)
}
