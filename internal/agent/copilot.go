package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/BnJam/hyperion/internal/debug"
)

// CopilotHarness shells out to the copilot CLI in silent one-shot mode.
type CopilotHarness struct {
	Binary string
	Model  string
}

// NewCopilotHarness returns a harness invoking the `copilot` binary on PATH.
func NewCopilotHarness(model string) *CopilotHarness {
	return &CopilotHarness{Binary: "copilot", Model: model}
}

func (h *CopilotHarness) Run(ctx context.Context, prompt string) (string, error) {
	debug.Logf("copilot run model=%s", h.Model)
	cmd := exec.CommandContext(ctx, h.Binary, "--model", h.Model, "--silent", "-p", prompt)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := fmt.Sprintf("copilot exited with error: %v", err)
		if s := strings.TrimSpace(stderr.String()); s != "" {
			msg += ", stderr: " + s
		}
		if s := strings.TrimSpace(stdout.String()); s != "" {
			msg += ", stdout: " + s
		}
		return "", fmt.Errorf("%s", msg)
	}
	return stdout.String(), nil
}
