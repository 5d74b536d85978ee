// Package agent runs coding-agent harnesses that turn a task prompt into a
// JSON change request.
//
// Selection is environment driven: HYPERION_AGENT=copilot runs the external
// copilot CLI, HYPERION_AGENT=claude calls the Anthropic Messages API, and
// anything else falls back to the deterministic simulated harness.
package agent

import (
	"context"
	"os"
)

// DefaultModel is used when the caller does not pick one.
const DefaultModel = "gpt-5-mini"

// Harness produces an agent response for a prompt. Implementations must be
// safe for concurrent use.
type Harness interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// Select returns the harness named by HYPERION_AGENT, defaulting to the
// simulated harness when the variable is unset or unrecognized.
func Select(model string) Harness {
	if model == "" {
		model = DefaultModel
	}
	switch os.Getenv("HYPERION_AGENT") {
	case "copilot":
		return NewCopilotHarness(model)
	case "claude":
		return NewClaudeHarness(model)
	default:
		return &SimulatedHarness{}
	}
}
