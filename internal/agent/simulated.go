package agent

import (
	"context"
	"fmt"
	"strings"
)

// SimulatedHarness produces a deterministic response without any external
// agent. The prompt's Task ID line is echoed back so callers can correlate.
type SimulatedHarness struct{}

func (h *SimulatedHarness) Run(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	taskID := "unknown"
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, "Task ID: "); ok {
			taskID = strings.TrimSpace(rest)
			break
		}
	}
	return fmt.Sprintf("simulated response for %s", taskID), nil
}
