// Package request drives the front half of the pipeline: a task request file
// is decomposed into assignments, a small pool of agents turns each
// assignment into a change request, and valid results are enqueued.
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/BnJam/hyperion/internal/agent"
	"github.com/BnJam/hyperion/internal/debug"
	"github.com/BnJam/hyperion/internal/orchestrator"
	"github.com/BnJam/hyperion/internal/queue"
	"github.com/BnJam/hyperion/internal/types"
	"github.com/BnJam/hyperion/internal/validation"
)

// Options controls request handling.
type Options struct {
	Model     string // agent model, agent.DefaultModel when empty
	MaxAgents int    // concurrent agents, clamped to [1,3]
}

// Handle reads a TaskRequest JSON file, fans its assignments out to agents,
// and enqueues every valid resulting change request. It returns the number
// enqueued; any assignment failure makes the whole call fail after the rest
// have drained.
func Handle(ctx context.Context, q *queue.Queue, path string, opts Options) (int, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read task request: %w", err)
	}
	var taskRequest types.TaskRequest
	if err := json.Unmarshal(contents, &taskRequest); err != nil {
		return 0, fmt.Errorf("parse task request: %w", err)
	}

	assignments := orchestrator.Decompose(&taskRequest)
	if len(assignments) == 0 {
		return 0, fmt.Errorf("task request produced no assignments")
	}
	return RunAssignments(ctx, q, assignments, opts)
}

// RunAssignments distributes assignments across 1-3 agent goroutines and
// enqueues the change requests they produce.
func RunAssignments(ctx context.Context, q *queue.Queue, assignments []types.TaskAssignment, opts Options) (int, error) {
	agentCount := clamp(opts.MaxAgents, 1, 3)
	model := opts.Model
	if model == "" {
		model = agent.DefaultModel
	}

	work := make(chan *types.TaskAssignment)
	results := make(chan *types.ChangeRequest, len(assignments))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < agentCount; i++ {
		agentName := fmt.Sprintf("agent-%d", i+1)
		harness := agent.Select(model)
		g.Go(func() error {
			for assignment := range work {
				request := runAssignment(ctx, harness, assignment, agentName)
				select {
				case results <- request:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(work)
		for i := range assignments {
			select {
			case work <- &assignments[i]:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}
	close(results)

	enqueued := 0
	failures := 0
	for request := range results {
		result := validation.ValidateChangeRequest(request)
		if !result.Valid {
			failures++
			fmt.Fprintf(os.Stderr, "invalid change request for %s: %v\n", request.TaskID, result.Errors)
			continue
		}
		id, err := q.Enqueue(ctx, request)
		if err != nil {
			return enqueued, fmt.Errorf("enqueue %s: %w", request.TaskID, err)
		}
		fmt.Printf("Enqueued change request %d for %s\n", id, request.TaskID)
		enqueued++
	}

	if failures > 0 {
		return enqueued, fmt.Errorf("%d assignment(s) failed", failures)
	}
	return enqueued, nil
}

// runAssignment asks the harness for a change request and falls back to a
// deterministic one when the agent fails or returns unparseable output.
func runAssignment(ctx context.Context, harness agent.Harness, assignment *types.TaskAssignment, agentName string) *types.ChangeRequest {
	response, err := harness.Run(ctx, BuildPrompt(assignment, agentName))
	if err != nil {
		debug.Logf("agent execution failed for %s: %v", assignment.TaskID, err)
		return FallbackRequest(assignment, agentName)
	}

	var request types.ChangeRequest
	if err := json.Unmarshal([]byte(extractJSON(response)), &request); err != nil {
		debug.Logf("failed to parse agent response for %s: %v", assignment.TaskID, err)
		return FallbackRequest(assignment, agentName)
	}
	// The queue is authoritative for identity regardless of what the agent
	// put in its response.
	request.TaskID = assignment.TaskID
	request.Agent = agentName
	return &request
}

// BuildPrompt renders the instruction prompt an agent receives for one
// assignment.
func BuildPrompt(assignment *types.TaskAssignment, agentName string) string {
	return fmt.Sprintf(
		"You are %s. Produce a JSON change request only, no prose.\n\n"+
			"Task ID: %s\n"+
			"Summary: %s\n"+
			"Files: %s\n"+
			"Instructions:\n"+
			"- %s\n\n"+
			"Return a single JSON object with fields: task_id, agent, changes (array), checks (array).\n"+
			"Each change must include: path, operation (add/update/delete), patch (diff or full replacement).\n"+
			"Include at least one check in the checks array.\n",
		agentName,
		assignment.TaskID,
		assignment.Summary,
		strings.Join(assignment.FileTargets, ", "),
		strings.Join(assignment.Instructions, "\n- "),
	)
}

// FallbackRequest builds the deterministic change request used when no live
// agent produced a usable one.
func FallbackRequest(assignment *types.TaskAssignment, agentName string) *types.ChangeRequest {
	path := assignment.FileTargets[0]
	patch := fmt.Sprintf(
		"diff --git a/%s b/%s\n"+
			"index 0000000..0000000 100644\n"+
			"--- a/%s\n"+
			"+++ b/%s\n"+
			"@@ -0,0 +1 @@\n"+
			"+// Orchestrated update for %s by %s\n",
		path, path, path, path, assignment.TaskID, agentName)

	return &types.ChangeRequest{
		TaskID: assignment.TaskID,
		Agent:  agentName,
		Changes: []types.ChangeOperation{{
			Path:      path,
			Operation: types.OpUpdate,
			Patch:     patch,
			PatchHash: types.PatchHash(patch),
		}},
		Checks: []string{"go vet ./..."},
	}
}

// extractJSON trims any prose surrounding the first JSON object in an agent
// response.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
