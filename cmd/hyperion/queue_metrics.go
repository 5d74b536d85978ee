package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	metricsWindow int64
	metricsFormat string
)

var queueMetricsCmd = &cobra.Command{
	Use:   "queue-metrics",
	Short: "Aggregate the trailing window of queue activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		metrics, err := q.Metrics(rootCtx, metricsWindow)
		if err != nil {
			return err
		}
		if metricsFormat == "json" {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		counts := metrics.StatusCounts
		fmt.Printf("Queue metrics (%ds window): pending=%d in_progress=%d applied=%d failed=%d throughput=%s lease_contention_events=%d\n",
			metrics.WindowSeconds, counts.Pending, counts.InProgress, counts.Applied, counts.Failed,
			formatMetric(metrics.ThroughputPerMinute, "/min"), metrics.LeaseContentionEvents)
		fmt.Printf("           avg_dequeue_latency=%s avg_apply_duration=%s avg_poll_interval=%s\n",
			formatMetric(metrics.AvgDequeueLatencyMs, "ms"),
			formatMetric(metrics.AvgApplyDurationMs, "ms"),
			formatMetric(metrics.AvgPollIntervalMs, "ms"))
		return nil
	},
}

func formatMetric(v *float64, suffix string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%s", *v, suffix)
}

func init() {
	queueMetricsCmd.Flags().Int64Var(&metricsWindow, "since", 60, "trailing window in seconds")
	queueMetricsCmd.Flags().StringVar(&metricsFormat, "format", "", "output format (json)")
	rootCmd.AddCommand(queueMetricsCmd)
}
