package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/timeparsing"
	"github.com/BnJam/hyperion/internal/types"
)

var (
	deadLetterSince  string
	deadLetterLimit  int
	deadLetterFormat string
)

var listDeadLettersCmd = &cobra.Command{
	Use:   "list-dead-letters",
	Short: "List archived dead letters, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		letters, err := q.ListDeadLetters(rootCtx)
		if err != nil {
			return err
		}
		if deadLetterSince != "" {
			cutoff, err := timeparsing.ParseTimeExpression(deadLetterSince, time.Now())
			if err != nil {
				return err
			}
			letters = filterDeadLettersSince(letters, cutoff.Unix())
		}
		if deadLetterLimit > 0 && len(letters) > deadLetterLimit {
			letters = letters[:deadLetterLimit]
		}
		if deadLetterFormat == "json" {
			data, err := json.MarshalIndent(letters, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		for _, letter := range letters {
			fmt.Printf("%d queue_id=%d task_id=%s agent=%s failed_at=%d error=%q\n",
				letter.ID, letter.QueueID, letter.TaskID, letter.Agent, letter.FailedAt, letter.Error)
		}
		return nil
	},
}

func filterDeadLettersSince(letters []types.DeadLetter, cutoff int64) []types.DeadLetter {
	out := letters[:0]
	for _, letter := range letters {
		if letter.FailedAt >= cutoff {
			out = append(out, letter)
		}
	}
	return out
}

func init() {
	listDeadLettersCmd.Flags().StringVar(&deadLetterSince, "since", "", "only letters failed after this time (-2d, yesterday, RFC3339)")
	listDeadLettersCmd.Flags().IntVar(&deadLetterLimit, "limit", 0, "maximum letters to show (0 = all)")
	listDeadLettersCmd.Flags().StringVar(&deadLetterFormat, "format", "", "output format (json)")
	rootCmd.AddCommand(listDeadLettersCmd)
}
