// Package store contains the entity model and database layer for baton.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Harness selects the execution backend a job runs on.
// The set is closed; anything else is rejected at insert time.
type Harness string

const (
	HarnessClaude Harness = "claude"
	HarnessCodex  Harness = "codex"
	HarnessGemini Harness = "gemini"
)

// Valid reports whether h is one of the known backends.
func (h Harness) Valid() bool {
	switch h {
	case HarnessClaude, HarnessCodex, HarnessGemini:
		return true
	}
	return false
}

// JobType is a closed enum of work kinds. Reporting types carry a
// capability flag rather than being matched by string elsewhere.
type JobType string

const (
	JobTypeReview    JobType = "review"
	JobTypeImplement JobType = "implement"
	JobTypePM        JobType = "pm"
	JobTypeUAT       JobType = "uat"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeReview, JobTypeImplement, JobTypePM, JobTypeUAT:
		return true
	}
	return false
}

// Reporting reports whether a group of this type closes out a work phase.
// Terminal reporting groups reset the accumulated context carried to later
// groups and are the trigger point for guardian evaluation.
func (t JobType) Reporting() bool {
	return t == JobTypePM
}

// ReportingJobTypes returns the types with the reporting capability.
func ReportingJobTypes() []JobType {
	return []JobType{JobTypePM}
}

// JobStatus is the lifecycle state of a single job.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Terminal reports whether the status is final. Terminal jobs are immutable.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// GroupStatus is derived from a group's jobs and is never set directly.
type GroupStatus string

const (
	GroupStatusPending  GroupStatus = "pending"
	GroupStatusRunning  GroupStatus = "running"
	GroupStatusComplete GroupStatus = "complete"
	GroupStatusFailed   GroupStatus = "failed"
)

// Terminal reports whether the group has finished, successfully or not.
func (s GroupStatus) Terminal() bool {
	return s == GroupStatusComplete || s == GroupStatusFailed
}

// AssignmentStatus is the lifecycle state of an assignment.
type AssignmentStatus string

const (
	AssignmentStatusPending  AssignmentStatus = "pending"
	AssignmentStatusActive   AssignmentStatus = "active"
	AssignmentStatusBlocked  AssignmentStatus = "blocked"
	AssignmentStatusComplete AssignmentStatus = "complete"
)

// Alignment is the guardian monitor's judgement of an assignment.
type Alignment string

const (
	AlignmentAligned    Alignment = "aligned"
	AlignmentUncertain  Alignment = "uncertain"
	AlignmentMisaligned Alignment = "misaligned"
)

// Valid reports whether a is a known alignment value.
func (a Alignment) Valid() bool {
	switch a {
	case AlignmentAligned, AlignmentUncertain, AlignmentMisaligned:
		return true
	}
	return false
}

// ThreadMode controls how a chat thread behaves. Guardian mode arms
// alignment evaluation for the linked assignment.
type ThreadMode string

const (
	ThreadModeJam      ThreadMode = "jam"
	ThreadModeCook     ThreadMode = "cook"
	ThreadModeGuardian ThreadMode = "guardian"
)

// Valid reports whether m is a known thread mode.
func (m ThreadMode) Valid() bool {
	switch m {
	case ThreadModeJam, ThreadModeCook, ThreadModeGuardian:
		return true
	}
	return false
}

// Namespace is the isolation boundary. Every other entity is scoped to one
// and all API access is authenticated per namespace.
type Namespace struct {
	ID             uuid.UUID
	Name           string
	Description    string
	RateLimit      int // requests/second, 0 = unlimited
	RateLimitBurst int
	CreatedAt      time.Time
}

// Assignment is a top-level objective owning a chain of job groups.
type Assignment struct {
	ID            uuid.UUID
	NamespaceID   uuid.UUID
	NorthStar     string
	Status        AssignmentStatus
	BlockedReason *string
	Alignment     *Alignment
	Independent   bool
	// Priority orders sequential assignments; lower is more urgent.
	Priority    int
	Artifacts   string
	Decisions   string
	HeadGroupID *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobGroup is a batch of jobs executed in parallel. Groups form a singly
// linked chain per assignment via NextGroupID; the chain is the unit of
// sequencing, the group is the unit of parallelism.
type JobGroup struct {
	ID           uuid.UUID
	AssignmentID uuid.UUID
	NamespaceID  uuid.UUID
	NextGroupID  *uuid.UUID
	Status       GroupStatus
	// AggregatedResult is written exactly once, when the group first
	// turns terminal. Empty for a group whose jobs all failed.
	AggregatedResult *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Job is one unit of work: a type, a harness, and a lifecycle.
type Job struct {
	ID           uuid.UUID
	GroupID      uuid.UUID
	AssignmentID uuid.UUID
	NamespaceID  uuid.UUID
	// Seq is the creation order within the group; aggregation and
	// letter suffixes follow it.
	Seq         int
	Type        JobType
	Harness     Harness
	Context     *string
	Prompt      *string
	Status      JobStatus
	Result      *string
	Metrics     JobMetrics
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// JobMetrics are informational counters reported by the runner while a job
// executes. They never affect scheduling or status.
type JobMetrics struct {
	InputTokens  int64  `json:"input_tokens,omitempty"`
	OutputTokens int64  `json:"output_tokens,omitempty"`
	OutputBytes  int64  `json:"output_bytes,omitempty"`
	Progress     string `json:"progress,omitempty"`
}

// ChatThread is a conversation container that may reference one assignment.
// Only the link and the mode matter to the orchestration core; message
// history lives with the chat collaborator.
type ChatThread struct {
	ID           uuid.UUID
	NamespaceID  uuid.UUID
	AssignmentID *uuid.UUID
	Mode         ThreadMode
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GuardianEvaluation records one applied alignment judgement. The unique
// group reference is what makes the evaluation trigger fire exactly once
// per terminal reporting group.
type GuardianEvaluation struct {
	ID           uuid.UUID
	AssignmentID uuid.UUID
	GroupID      uuid.UUID
	Status       Alignment
	Rationale    string
	CreatedAt    time.Time
}

// NamespaceCounters are denormalized job tallies per namespace, maintained
// inside the same transaction as every job status change.
type NamespaceCounters struct {
	NamespaceID  uuid.UUID
	JobsPending  int64
	JobsRunning  int64
	JobsComplete int64
	JobsFailed   int64
}

// CounterDelta is applied to NamespaceCounters atomically with the
// mutation that caused it.
type CounterDelta struct {
	Pending  int64
	Running  int64
	Complete int64
	Failed   int64
}
