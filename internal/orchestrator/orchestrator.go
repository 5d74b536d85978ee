// Package orchestrator decomposes a high-level task request into per-file
// task assignments that agents can execute independently.
package orchestrator

import (
	"fmt"
	"strings"

	"github.com/BnJam/hyperion/internal/types"
)

// Decompose splits a task request into one assignment per requested change.
// Phase IDs on requested changes propagate into the assignments.
func Decompose(request *types.TaskRequest) []types.TaskAssignment {
	assignments := make([]types.TaskAssignment, 0, len(request.RequestedChanges))
	for i := range request.RequestedChanges {
		assignments = append(assignments, buildAssignment(request, &request.RequestedChanges[i], i))
	}
	return assignments
}

func buildAssignment(request *types.TaskRequest, change *types.RequestedChange, index int) types.TaskAssignment {
	blocking := true
	if change.BlockingOnFailure != nil {
		blocking = *change.BlockingOnFailure
	}
	return types.TaskAssignment{
		TaskID:          fmt.Sprintf("%s-%d", request.RequestID, index+1),
		ParentRequestID: request.RequestID,
		Summary:         change.Summary,
		FileTargets:     []string{change.Path},
		Instructions: []string{
			"Keep changes isolated to the listed files.",
			"Provide a structured JSON change request on completion.",
		},
		Metadata: types.AssignmentMetadata{
			Intent:     fmt.Sprintf("%s :: %s", request.Summary, change.Summary),
			Complexity: computeComplexity(change),
			SampleDiff: sampleDiff(change),
			TelemetryAnchors: []string{
				"cast:" + request.RequestID,
				"task:" + strings.ReplaceAll(change.Summary, " ", "_"),
			},
			PhaseID:           change.PhaseID,
			BlockingOnFailure: change.BlockingOnFailure,
		},
		PhaseID:           change.PhaseID,
		BlockingOnFailure: blocking,
	}
}

// computeComplexity scores an assignment 1-10 from the summary and path
// lengths. The score is stable for a given change, which keeps repeated
// decompositions comparable.
func computeComplexity(change *types.RequestedChange) int {
	return 1 + (len(change.Summary)+len(change.Path))%10
}

func sampleDiff(change *types.RequestedChange) string {
	return fmt.Sprintf("diff --git a/%s b/%s\n@@ -0,0 +1 @@\n+// Update: %s",
		change.Path, change.Path, change.Summary)
}
