package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction
// to the repository methods. A nil DBTransaction means "use the pool".
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// NamespaceStore handles namespace records and API key authentication.
type NamespaceStore interface {
	// CreateNamespace inserts a new namespace together with its API key hash.
	CreateNamespace(ctx context.Context, tx DBTransaction, ns *Namespace, keyHash string) error

	// GetNamespaceByID returns a namespace by its ID.
	GetNamespaceByID(ctx context.Context, id uuid.UUID) (*Namespace, error)

	// GetNamespaceByName returns a namespace by its unique name.
	GetNamespaceByName(ctx context.Context, name string) (*Namespace, error)

	// GetNamespaceByAPIKeyHash returns the namespace owning an API key hash.
	GetNamespaceByAPIKeyHash(ctx context.Context, hash string) (*Namespace, error)

	// UpdateNamespaceDescription replaces the free-form description.
	UpdateNamespaceDescription(ctx context.Context, tx DBTransaction, id uuid.UUID, description string) error

	// DeleteNamespace removes an empty namespace and its counters.
	DeleteNamespace(ctx context.Context, tx DBTransaction, id uuid.UUID) error

	// CountAssignmentsInNamespace returns how many assignments exist in the
	// namespace, any status.
	CountAssignmentsInNamespace(ctx context.Context, tx DBTransaction, namespaceID uuid.UUID) (int64, error)
}

// AssignmentStore handles assignment rows. Reads accept a transaction so the
// scheduler and dispatch paths see one consistent snapshot.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, tx DBTransaction, a *Assignment) error

	GetAssignmentByID(ctx context.Context, tx DBTransaction, id uuid.UUID) (*Assignment, error)

	// ListAssignmentsByNamespace returns assignments ordered by creation
	// time. A nil status filter returns every assignment.
	ListAssignmentsByNamespace(ctx context.Context, tx DBTransaction, namespaceID uuid.UUID, statuses []AssignmentStatus) ([]Assignment, error)

	// LockSequentialAssignments serializes activation of non-independent
	// assignments in a namespace for the rest of the transaction. Callers
	// must take this lock before checking the one-active rule.
	LockSequentialAssignments(ctx context.Context, tx DBTransaction, namespaceID uuid.UUID) error

	// UpdateAssignmentStatus moves an assignment to status and records the
	// blocked reason (nil clears it).
	UpdateAssignmentStatus(ctx context.Context, tx DBTransaction, id uuid.UUID, status AssignmentStatus, blockedReason *string, at time.Time) error

	// UpdateAssignmentAlignment writes the guardian judgement.
	UpdateAssignmentAlignment(ctx context.Context, tx DBTransaction, id uuid.UUID, alignment Alignment, at time.Time) error

	// SetAssignmentHead points the assignment at the first group of its chain.
	SetAssignmentHead(ctx context.Context, tx DBTransaction, id uuid.UUID, head uuid.UUID, at time.Time) error

	// SetAssignmentArtifacts replaces the accumulated artifacts text.
	SetAssignmentArtifacts(ctx context.Context, tx DBTransaction, id uuid.UUID, artifacts string, at time.Time) error

	// SetAssignmentDecisions replaces the accumulated decision log.
	SetAssignmentDecisions(ctx context.Context, tx DBTransaction, id uuid.UUID, decisions string, at time.Time) error
}

// GroupStore handles job group rows and the chain links between them.
type GroupStore interface {
	CreateGroup(ctx context.Context, tx DBTransaction, g *JobGroup) error

	GetGroupByID(ctx context.Context, tx DBTransaction, id uuid.UUID) (*JobGroup, error)

	// SetGroupNext rewires the chain pointer of a group (nil for tail).
	SetGroupNext(ctx context.Context, tx DBTransaction, id uuid.UUID, next *uuid.UUID, at time.Time) error

	UpdateGroupStatus(ctx context.Context, tx DBTransaction, id uuid.UUID, status GroupStatus, at time.Time) error

	// FinalizeGroup writes the terminal status and the aggregated result in
	// one statement.
	FinalizeGroup(ctx context.Context, tx DBTransaction, id uuid.UUID, status GroupStatus, aggregated string, at time.Time) error

	// ListGroupsByAssignment returns every group of an assignment ordered by
	// creation time. Chain order is reconstructed from the next pointers.
	ListGroupsByAssignment(ctx context.Context, tx DBTransaction, assignmentID uuid.UUID) ([]JobGroup, error)
}

// JobStore handles job rows. Claim and terminal transitions are guarded in
// SQL so that concurrent callers race on the row, not in Go.
type JobStore interface {
	// CreateJobs inserts a batch of jobs. All rows land or none do when
	// called inside a transaction.
	CreateJobs(ctx context.Context, tx DBTransaction, jobs []*Job) error

	GetJobByID(ctx context.Context, tx DBTransaction, id uuid.UUID) (*Job, error)

	// ListJobsByGroup returns the jobs of a group ordered by Seq.
	ListJobsByGroup(ctx context.Context, tx DBTransaction, groupID uuid.UUID) ([]Job, error)

	// MarkJobRunning flips a pending job to running. Returns false without
	// error when the job was not pending.
	MarkJobRunning(ctx context.Context, tx DBTransaction, id uuid.UUID, at time.Time) (bool, error)

	// MarkJobTerminal flips a running job to complete or failed and stores
	// the result. Returns false when the job was not running.
	MarkJobTerminal(ctx context.Context, tx DBTransaction, id uuid.UUID, status JobStatus, result *string, at time.Time) (bool, error)

	// UpdateJobMetrics overwrites the metrics blob of a non-terminal job.
	// Returns false when the job is already terminal.
	UpdateJobMetrics(ctx context.Context, tx DBTransaction, id uuid.UUID, m JobMetrics) (bool, error)

	// CountJobsByAssignment tallies an assignment's jobs in one status.
	CountJobsByAssignment(ctx context.Context, tx DBTransaction, assignmentID uuid.UUID, status JobStatus) (int64, error)

	// ListRunningJobsOlderThan returns running jobs started before cutoff,
	// for the stale-job reaper.
	ListRunningJobsOlderThan(ctx context.Context, tx DBTransaction, cutoff time.Time) ([]Job, error)

	// CountJobsByStatus returns a global tally for observability gauges.
	CountJobsByStatus(ctx context.Context, status JobStatus) (int64, error)
}

// ThreadStore handles chat thread rows.
type ThreadStore interface {
	CreateThread(ctx context.Context, tx DBTransaction, t *ChatThread) error

	GetThreadByID(ctx context.Context, tx DBTransaction, id uuid.UUID) (*ChatThread, error)

	// GetThreadByAssignment returns the thread linked to an assignment, or
	// ErrNotFound when none is.
	GetThreadByAssignment(ctx context.Context, tx DBTransaction, assignmentID uuid.UUID) (*ChatThread, error)

	UpdateThreadMode(ctx context.Context, tx DBTransaction, id uuid.UUID, mode ThreadMode, at time.Time) error
}

// GuardianStore handles alignment evaluation records.
type GuardianStore interface {
	CreateEvaluation(ctx context.Context, tx DBTransaction, e *GuardianEvaluation) error

	// GetEvaluationByGroup returns the evaluation recorded for a group, or
	// ErrNotFound when the group has not been judged.
	GetEvaluationByGroup(ctx context.Context, tx DBTransaction, groupID uuid.UUID) (*GuardianEvaluation, error)

	ListEvaluationsByAssignment(ctx context.Context, tx DBTransaction, assignmentID uuid.UUID) ([]GuardianEvaluation, error)

	// ListUnevaluatedGroups returns terminal groups that contain at least one
	// job of a reporting type, belong to an assignment whose thread is in
	// guardian mode, and have no evaluation yet.
	ListUnevaluatedGroups(ctx context.Context, tx DBTransaction, namespaceID uuid.UUID, reportingTypes []JobType) ([]JobGroup, error)
}

// CounterStore maintains the denormalized per-namespace job tallies.
type CounterStore interface {
	// BumpJobCounters applies a delta to the namespace counters. Must be
	// called in the same transaction as the job mutation it mirrors.
	BumpJobCounters(ctx context.Context, tx DBTransaction, namespaceID uuid.UUID, d CounterDelta) error

	GetNamespaceCounters(ctx context.Context, namespaceID uuid.UUID) (*NamespaceCounters, error)
}

// Store is the full persistence surface the engine runs on. Both the
// postgres and the sqlite backends implement it.
type Store interface {
	NamespaceStore
	AssignmentStore
	GroupStore
	JobStore
	ThreadStore
	GuardianStore
	CounterStore

	BeginTx(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close() error
}
