package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify the schema, checkpoint the WAL, and report retention",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := doctor.Run(rootCtx, q, os.Stdout)
		return err
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
