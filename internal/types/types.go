// Package types defines core data structures for the hyperion change queue.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusApplied    Status = "applied"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusApplied || s == StatusFailed
}

// ParseStatus converts a stored status string back to a Status.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPending, StatusInProgress, StatusApplied, StatusFailed:
		return Status(value), nil
	default:
		return "", fmt.Errorf("unknown queue status: %q", value)
	}
}

// OperationKind classifies a single file change.
type OperationKind string

const (
	OpAdd    OperationKind = "add"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// ChangeOperation is one file-level change inside a change request.
type ChangeOperation struct {
	Path      string        `json:"path"`
	Operation OperationKind `json:"operation"`
	Patch     string        `json:"patch"`
	PatchHash string        `json:"patch_hash,omitempty"`
}

// ChangeRequest is the unit of work carried by the queue: one task, one agent,
// one or more file changes plus the verification checks to run after apply.
type ChangeRequest struct {
	TaskID  string            `json:"task_id"`
	Agent   string            `json:"agent"`
	Changes []ChangeOperation `json:"changes"`
	Checks  []string          `json:"checks"`
}

// PatchHash returns the SHA-256 of the patch bytes rendered as lowercase hex.
func PatchHash(patch string) string {
	sum := sha256.Sum256([]byte(patch))
	return hex.EncodeToString(sum[:])
}

// QueueEntry is one durable row in the change queue.
//
// LeasedUntil and LeaseOwner are set only while the entry is in progress; an
// in_progress row whose lease has expired is reclaimable by the next dequeue.
type QueueEntry struct {
	ID          int64         `json:"id"`
	Status      Status        `json:"status"`
	Payload     ChangeRequest `json:"payload"`
	Attempts    int64         `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	LeasedUntil *int64        `json:"leased_until,omitempty"`
	LeaseOwner  string        `json:"lease_owner,omitempty"`
	CreatedAt   int64         `json:"created_at"`
	UpdatedAt   int64         `json:"updated_at"`
}

// DeadLetter is the immutable archival copy written when an entry fails.
type DeadLetter struct {
	ID       int64  `json:"id"`
	QueueID  int64  `json:"queue_id"`
	TaskID   string `json:"task_id"`
	Agent    string `json:"agent"`
	Payload  string `json:"payload"`
	Error    string `json:"error,omitempty"`
	FailedAt int64  `json:"failed_at"`
}

// LogEvent is one append-only journal row. QueueID is 0 for events that are
// not tied to a specific entry (doctor runs, filesystem notifications).
type LogEvent struct {
	ID        int64  `json:"id"`
	QueueID   int64  `json:"queue_id"`
	TaskID    string `json:"task_id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"` // opaque JSON
	CreatedAt int64  `json:"created_at"`
}

// FileEvent records one filesystem notification.
type FileEvent struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Event     string `json:"event"`
	Source    string `json:"source"`
	Details   string `json:"details,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// AgentSession is a resumable agent conversation, addressable by ResumeID.
type AgentSession struct {
	ID            int64  `json:"id"`
	ResumeID      string `json:"resume_id"`
	Model         string `json:"model"`
	AllowAllTools bool   `json:"allow_all_tools"`
	CreatedAt     int64  `json:"created_at"`
	LastUsed      int64  `json:"last_used"`
}

// ValidationResult is the outcome of validating a change request.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// StatusCounts is a point-in-time census of the queue.
type StatusCounts struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Applied    int64 `json:"applied"`
	Failed     int64 `json:"failed"`
}

// QueueMetrics aggregates the trailing window of queue activity. Averages are
// nil when the window contains no samples for that series.
type QueueMetrics struct {
	WindowSeconds         int64        `json:"window_seconds"`
	StatusCounts          StatusCounts `json:"status_counts"`
	AvgDequeueLatencyMs   *float64     `json:"avg_dequeue_latency_ms"`
	AvgApplyDurationMs    *float64     `json:"avg_apply_duration_ms"`
	AvgPollIntervalMs     *float64     `json:"avg_poll_interval_ms"`
	ThroughputPerMinute   *float64     `json:"throughput_per_minute"`
	LeaseContentionEvents int64        `json:"lease_contention_events"`
	Timestamp             int64        `json:"timestamp"`
}

// TaskRequest is a high-level change request before decomposition.
type TaskRequest struct {
	RequestID        string            `json:"request_id"`
	Summary          string            `json:"summary"`
	RequestedChanges []RequestedChange `json:"requested_changes"`
}

// RequestedChange names one file the task request wants touched.
type RequestedChange struct {
	Path              string `json:"path"`
	Summary           string `json:"summary"`
	PhaseID           string `json:"phase_id,omitempty"`
	BlockingOnFailure *bool  `json:"blocking_on_failure,omitempty"`
}

// AssignmentMetadata carries orchestrator context for a task assignment.
type AssignmentMetadata struct {
	Intent            string   `json:"intent"`
	Complexity        int      `json:"complexity"`
	SampleDiff        string   `json:"sample_diff,omitempty"`
	TelemetryAnchors  []string `json:"telemetry_anchors,omitempty"`
	AgentModel        string   `json:"agent_model,omitempty"`
	PhaseID           string   `json:"phase_id,omitempty"`
	BlockingOnFailure *bool    `json:"blocking_on_failure,omitempty"`
}

// TaskAssignment is one per-file unit of agent work produced by the
// orchestrator from a TaskRequest.
type TaskAssignment struct {
	TaskID            string             `json:"task_id"`
	ParentRequestID   string             `json:"parent_request_id"`
	Summary           string             `json:"summary"`
	FileTargets       []string           `json:"file_targets"`
	Instructions      []string           `json:"instructions"`
	Metadata          AssignmentMetadata `json:"metadata"`
	PhaseID           string             `json:"phase_id,omitempty"`
	BlockingOnFailure bool               `json:"blocking_on_failure"`
}
