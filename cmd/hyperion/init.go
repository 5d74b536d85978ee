package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the queue database and write a starter config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Opening the store in PersistentPreRunE already created the schema.
		if path, err := config.WriteStarterConfig(""); err == nil {
			fmt.Printf("Wrote starter config to %s\n", path)
		}
		fmt.Printf("Initialized queue at %s\n", dbPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
