// Package validation rejects malformed change requests before any side
// effect. The validator is pure: same input, same output, no IO.
package validation

import (
	"fmt"
	"path"
	"strings"

	"github.com/BnJam/hyperion/internal/types"
)

// ValidateChangeRequest checks a change request against the rules the worker
// and the CLI both enforce. It never returns an error for bad input; every
// problem lands in the result's Errors list.
func ValidateChangeRequest(request *types.ChangeRequest) types.ValidationResult {
	var errs []string

	if strings.TrimSpace(request.TaskID) == "" {
		errs = append(errs, "task_id is required")
	}
	if strings.TrimSpace(request.Agent) == "" {
		errs = append(errs, "agent is required")
	}
	if len(request.Changes) == 0 {
		errs = append(errs, "changes must not be empty")
	}
	if len(request.Checks) == 0 {
		errs = append(errs, "checks must not be empty")
	}

	for i := range request.Changes {
		errs = validateChangeOperation(i, &request.Changes[i], errs)
	}

	return types.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func validateChangeOperation(index int, change *types.ChangeOperation, errs []string) []string {
	if strings.TrimSpace(change.Path) == "" {
		errs = append(errs, fmt.Sprintf("changes[%d].path is required", index))
	} else {
		if path.IsAbs(change.Path) {
			errs = append(errs, fmt.Sprintf("changes[%d].path must be relative", index))
		}
		if hasParentSegment(change.Path) {
			errs = append(errs, fmt.Sprintf("changes[%d].path must not contain '..'", index))
		}
	}

	if strings.TrimSpace(change.Patch) == "" {
		errs = append(errs, fmt.Sprintf("changes[%d].patch is required", index))
		return errs
	}

	// Diff headers must agree with the declared operation.
	newHeader := "+++ b/" + change.Path
	oldHeader := "--- a/" + change.Path
	switch change.Operation {
	case types.OpAdd:
		if !strings.Contains(change.Patch, newHeader) {
			errs = append(errs, fmt.Sprintf("changes[%d].patch missing %q header for add", index, newHeader))
		}
	case types.OpDelete:
		if !strings.Contains(change.Patch, oldHeader) {
			errs = append(errs, fmt.Sprintf("changes[%d].patch missing %q header for delete", index, oldHeader))
		}
	case types.OpUpdate:
		if !strings.Contains(change.Patch, oldHeader) {
			errs = append(errs, fmt.Sprintf("changes[%d].patch missing %q header for update", index, oldHeader))
		}
		if !strings.Contains(change.Patch, newHeader) {
			errs = append(errs, fmt.Sprintf("changes[%d].patch missing %q header for update", index, newHeader))
		}
	default:
		errs = append(errs, fmt.Sprintf("changes[%d].operation %q is not one of add, update, delete", index, change.Operation))
	}

	if change.PatchHash != "" {
		if want := types.PatchHash(change.Patch); change.PatchHash != want {
			errs = append(errs, fmt.Sprintf("changes[%d].patch_hash does not match patch contents", index))
		}
	}
	return errs
}

// hasParentSegment reports whether p contains a ".." path segment.
func hasParentSegment(p string) bool {
	for _, segment := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return true
		}
	}
	return false
}
