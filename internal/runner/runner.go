// Package runner executes verification checks after a change request has been
// applied. Each check is a shell command; the first failure stops the run.
package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/BnJam/hyperion/internal/debug"
)

// CheckError carries the command and its captured output when a check fails.
type CheckError struct {
	Command string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *CheckError) Error() string {
	msg := fmt.Sprintf("check failed: %s", e.Command)
	if trimmed := strings.TrimSpace(e.Stderr); trimmed != "" {
		msg += ", stderr: " + trimmed
	}
	return msg
}

func (e *CheckError) Unwrap() error { return e.Err }

// Runner executes checks in a fixed working directory.
type Runner struct {
	dir string
}

// New returns a runner executing checks in dir. Empty dir means the current
// directory.
func New(dir string) *Runner {
	return &Runner{dir: dir}
}

// RunChecks runs each check via `sh -c` and returns a CheckError for the
// first one that exits nonzero. Cancellation via ctx kills the child process.
func (r *Runner) RunChecks(ctx context.Context, checks []string) error {
	for _, check := range checks {
		debug.Logf("running check: %s", check)
		cmd := exec.CommandContext(ctx, "sh", "-c", check)
		cmd.Dir = r.dir
		var stdout, stderr strings.Builder
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return &CheckError{
				Command: check,
				Stdout:  stdout.String(),
				Stderr:  stderr.String(),
				Err:     err,
			}
		}
	}
	return nil
}
