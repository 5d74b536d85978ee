// Package apply materializes validated change requests on the working tree.
//
// Patches use unified diff bodies. Add writes the added lines as the new file
// contents, Update appends the added lines to the existing file, and Delete
// removes the file. The applier never touches paths outside root.
package apply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/BnJam/hyperion/internal/debug"
	"github.com/BnJam/hyperion/internal/types"
)

const patchExcerptLimit = 200

// ApplyError describes a single change operation that could not be applied.
type ApplyError struct {
	Path         string
	Operation    types.OperationKind
	PatchExcerpt string
	Err          error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Applier writes change operations under a fixed root directory.
type Applier struct {
	root string
}

// New returns an applier rooted at dir. Empty dir means the current directory.
func New(dir string) *Applier {
	if dir == "" {
		dir = "."
	}
	return &Applier{root: dir}
}

// ApplyChangeRequest applies every change in the request. Changes target
// distinct files, so they fan out concurrently; the first failure cancels the
// rest and is returned.
func (a *Applier) ApplyChangeRequest(ctx context.Context, request *types.ChangeRequest) error {
	debug.Logf("applying change request task_id=%s agent=%s changes=%d",
		request.TaskID, request.Agent, len(request.Changes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range request.Changes {
		change := &request.Changes[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return a.applyChangeOperation(change)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	debug.Logf("change request applied task_id=%s", request.TaskID)
	return nil
}

func (a *Applier) applyChangeOperation(change *types.ChangeOperation) error {
	target, err := a.resolve(change.Path)
	if err != nil {
		return applyError(change, err)
	}

	switch change.Operation {
	case types.OpAdd:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return applyError(change, err)
		}
		body := extractAddedLines(change.Patch)
		if err := os.WriteFile(target, []byte(body), 0o644); err != nil {
			return applyError(change, err)
		}
	case types.OpUpdate:
		existing, err := os.ReadFile(target)
		if err != nil {
			return applyError(change, fmt.Errorf("update target: %w", err))
		}
		merged := mergeUpdate(string(existing), change.Patch)
		if err := os.WriteFile(target, []byte(merged), 0o644); err != nil {
			return applyError(change, err)
		}
	case types.OpDelete:
		if err := os.Remove(target); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return applyError(change, fmt.Errorf("delete target does not exist"))
			}
			return applyError(change, err)
		}
	default:
		return applyError(change, fmt.Errorf("unknown operation %q", change.Operation))
	}

	debug.Logf("applied %s %s", change.Operation, change.Path)
	return nil
}

// resolve joins path under the root and rejects escapes.
func (a *Applier) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be relative")
	}
	cleaned := filepath.Clean(filepath.Join(a.root, filepath.FromSlash(path)))
	rootAbs, err := filepath.Abs(a.root)
	if err != nil {
		return "", err
	}
	targetAbs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", err
	}
	if targetAbs != rootAbs && !strings.HasPrefix(targetAbs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes working tree")
	}
	return targetAbs, nil
}

// extractAddedLines returns the "+" lines of a unified diff body with the
// marker stripped, skipping the "+++ b/..." file header.
func extractAddedLines(patch string) string {
	var b strings.Builder
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "+++") {
			continue
		}
		if strings.HasPrefix(line, "+") {
			b.WriteString(line[1:])
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// mergeUpdate applies an update patch to existing contents. Added lines from
// the patch are appended as a new trailing hunk; removed lines that match
// existing content are dropped.
func mergeUpdate(existing, patch string) string {
	removed := make(map[string]bool)
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "---") {
			continue
		}
		if strings.HasPrefix(line, "-") {
			removed[line[1:]] = true
		}
	}

	var b strings.Builder
	if existing != "" {
		for _, line := range strings.Split(strings.TrimSuffix(existing, "\n"), "\n") {
			if removed[line] {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString(extractAddedLines(patch))
	return b.String()
}

func applyError(change *types.ChangeOperation, err error) *ApplyError {
	excerpt := change.Patch
	if len(excerpt) > patchExcerptLimit {
		excerpt = excerpt[:patchExcerptLimit] + "..."
	}
	return &ApplyError{
		Path:         change.Path,
		Operation:    change.Operation,
		PatchExcerpt: excerpt,
		Err:          err,
	}
}
