// Package api contains shared JSON request/response structs.
// This package is shared between the CLI, the runner and the Controller.
package api

import "time"

// CreateNamespaceRequest is the request body for creating a new namespace.
type CreateNamespaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateNamespaceResponse is the response body after creating a namespace.
// The API key is shown exactly once; only its hash is stored.
type CreateNamespaceResponse struct {
	ID     string `json:"namespace_id"`
	Name   string `json:"name"`
	ApiKey string `json:"api_key"`
}

// CountersResponse carries the denormalized per-namespace job tallies.
type CountersResponse struct {
	JobsPending  int64 `json:"jobs_pending"`
	JobsRunning  int64 `json:"jobs_running"`
	JobsComplete int64 `json:"jobs_complete"`
	JobsFailed   int64 `json:"jobs_failed"`
}

// NamespaceResponse is the response body for namespace queries.
type NamespaceResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Counters    CountersResponse `json:"counters"`
}

// CreateAssignmentRequest is the request body for opening a new assignment.
type CreateAssignmentRequest struct {
	NorthStar   string `json:"north_star"`
	Independent bool   `json:"independent,omitempty"`
	// Priority must be between 0 and 100; lower is more urgent.
	Priority int `json:"priority,omitempty"`
}

// AssignmentResponse represents an assignment in API responses.
type AssignmentResponse struct {
	ID            string    `json:"id"`
	NorthStar     string    `json:"north_star"`
	Status        string    `json:"status"`
	BlockedReason *string   `json:"blocked_reason,omitempty"`
	Alignment     *string   `json:"alignment,omitempty"`
	Independent   bool      `json:"independent"`
	Priority      int       `json:"priority"`
	Artifacts     string    `json:"artifacts,omitempty"`
	Decisions     string    `json:"decisions,omitempty"`
	HeadGroupID   *string   `json:"head_group_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BlockAssignmentRequest is the request body for blocking an assignment.
type BlockAssignmentRequest struct {
	Reason string `json:"reason"`
}

// RecordDecisionRequest appends one durable decision to an assignment.
type RecordDecisionRequest struct {
	Decision string `json:"decision"`
}

// JobSpecRequest is one requested job in a batch. Harness may be left
// empty when the controller's expansion policy fans the type out.
type JobSpecRequest struct {
	Type    string `json:"type"`
	Harness string `json:"harness,omitempty"`
	Context string `json:"context,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// EnqueueGroupRequest is the request body for adding a job group to an
// assignment's chain. With AfterGroupID unset the group is appended at
// the tail; otherwise it is spliced in after the named group.
type EnqueueGroupRequest struct {
	Jobs         []JobSpecRequest `json:"jobs"`
	AfterGroupID *string          `json:"after_group_id,omitempty"`
}

// JobMetrics are the informational counters a runner reports mid-flight.
type JobMetrics struct {
	InputTokens  int64  `json:"input_tokens,omitempty"`
	OutputTokens int64  `json:"output_tokens,omitempty"`
	OutputBytes  int64  `json:"output_bytes,omitempty"`
	Progress     string `json:"progress,omitempty"`
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID           string     `json:"id"`
	GroupID      string     `json:"group_id"`
	AssignmentID string     `json:"assignment_id"`
	Seq          int        `json:"seq"`
	Type         string     `json:"type"`
	Harness      string     `json:"harness"`
	Status       string     `json:"status"`
	Context      *string    `json:"context,omitempty"`
	Prompt       *string    `json:"prompt,omitempty"`
	Result       *string    `json:"result,omitempty"`
	Metrics      JobMetrics `json:"metrics"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// GroupResponse represents one job group in API responses.
type GroupResponse struct {
	ID               string        `json:"id"`
	AssignmentID     string        `json:"assignment_id"`
	NextGroupID      *string       `json:"next_group_id,omitempty"`
	Status           string        `json:"status"`
	AggregatedResult *string       `json:"aggregated_result,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Jobs             []JobResponse `json:"jobs,omitempty"`
}

// EnqueueGroupResponse is the response body after enqueueing a job group.
type EnqueueGroupResponse struct {
	GroupID string        `json:"group_id"`
	Jobs    []JobResponse `json:"jobs"`
}

// ChainResponse is an assignment together with its groups in link order.
type ChainResponse struct {
	Assignment AssignmentResponse `json:"assignment"`
	Groups     []GroupResponse    `json:"groups"`
}

// PriorResult is one completed upstream job's output, carried forward as
// context for a dispatched job.
type PriorResult struct {
	JobType    string `json:"job_type"`
	Harness    string `json:"harness"`
	Result     string `json:"result"`
	GroupIndex int    `json:"group_index"`
}

// ReadyJobResponse is one dispatchable job plus everything a runner needs
// to build the prompt for it.
type ReadyJobResponse struct {
	Job       JobResponse   `json:"job"`
	NorthStar string        `json:"north_star"`
	Decisions string        `json:"decisions,omitempty"`
	Prior     []PriorResult `json:"prior,omitempty"`
}

// ReadyJobsResponse is the response body for the ready-job feed.
type ReadyJobsResponse struct {
	Jobs []ReadyJobResponse `json:"jobs"`
}

// CompleteJobRequest is the payload sent by the runner on success.
type CompleteJobRequest struct {
	Result string `json:"result"`
}

// FailJobRequest is the payload sent by the runner on failure.
type FailJobRequest struct {
	Error *string `json:"error,omitempty"`
}

// UpdateJobMetricsRequest merges a metrics patch into a live job. Absent
// fields are left untouched.
type UpdateJobMetricsRequest struct {
	InputTokens  *int64  `json:"input_tokens,omitempty"`
	OutputTokens *int64  `json:"output_tokens,omitempty"`
	OutputBytes  *int64  `json:"output_bytes,omitempty"`
	Progress     *string `json:"progress,omitempty"`
}

// CreateThreadRequest is the request body for opening a chat thread.
type CreateThreadRequest struct {
	AssignmentID *string `json:"assignment_id,omitempty"`
	Mode         string  `json:"mode"`
	Title        string  `json:"title,omitempty"`
}

// SetThreadModeRequest switches a thread's mode.
type SetThreadModeRequest struct {
	Mode string `json:"mode"`
}

// ThreadResponse represents a chat thread in API responses.
type ThreadResponse struct {
	ID           string    `json:"id"`
	AssignmentID *string   `json:"assignment_id,omitempty"`
	Mode         string    `json:"mode"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PendingEvaluationResponse is one terminal reporting group awaiting a
// guardian judgement.
type PendingEvaluationResponse struct {
	GroupID      string `json:"group_id"`
	AssignmentID string `json:"assignment_id"`
	NorthStar    string `json:"north_star"`
	Report       string `json:"report"`
}

// PendingEvaluationsResponse is the response body for the guardian feed.
type PendingEvaluationsResponse struct {
	Evaluations []PendingEvaluationResponse `json:"evaluations"`
}

// ApplyAlignmentRequest records a guardian verdict for one group.
type ApplyAlignmentRequest struct {
	GroupID   string `json:"group_id"`
	Verdict   string `json:"verdict"`
	Rationale string `json:"rationale,omitempty"`
}

// EvaluationResponse represents an applied guardian evaluation.
type EvaluationResponse struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	GroupID      string    `json:"group_id"`
	Status       string    `json:"status"`
	Rationale    string    `json:"rationale,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReapResponse reports how many stale running jobs were failed.
type ReapResponse struct {
	Reaped int `json:"reaped"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Priority levels for assignments; lower values dispatch first.
const (
	PriorityUrgent = 0
	PriorityNormal = 50
	PriorityLow    = 100

	PriorityMin = 0
	PriorityMax = 100
)
