package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/exporter"
)

var exportReportOut string

var exportReportCmd = &cobra.Command{
	Use:   "export-report",
	Short: "Write a verification report snapshot of the metrics window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := exporter.WriteReport(rootCtx, q, exportReportOut)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote verification report to %s\n", path)
		return nil
	},
}

func init() {
	exportReportCmd.Flags().StringVar(&exportReportOut, "out", ".", "directory receiving execution/verification_report.json")
	rootCmd.AddCommand(exportReportCmd)
}
