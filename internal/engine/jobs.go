package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"baton/internal/store"
)

// GetJob returns a single job.
func (e *Engine) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return e.store.GetJobByID(ctx, nil, id)
}

// ClaimJob transitions a pending job to running on behalf of an executor.
// The claim, the group status refresh, the assignment activation, and the
// counter bump commit together or not at all. Claiming also enforces the
// sequencing rule: activating a non-independent assignment while another one
// is active fails the claim.
func (e *Engine) ClaimJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	j, err := e.store.GetJobByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	a, err := e.store.GetAssignmentByID(ctx, tx, j.AssignmentID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case store.AssignmentStatusBlocked:
		return nil, fmt.Errorf("%w: assignment %s is blocked", ErrConflict, a.ID)
	case store.AssignmentStatusComplete:
		return nil, fmt.Errorf("%w: assignment %s is complete", ErrConflict, a.ID)
	}

	now := e.now()
	ok, err := e.store.MarkJobRunning(ctx, tx, j.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s is %s, want pending", ErrInvalidTransition, j.ID, j.Status)
	}

	if err := e.settleGroup(ctx, tx, j.GroupID, now); err != nil {
		return nil, err
	}

	if a.Status == store.AssignmentStatusPending {
		if !a.Independent {
			ok, err := e.noOtherSequentialActive(ctx, tx, a)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: another sequential assignment is active in namespace %s", ErrConflict, a.NamespaceID)
			}
		}
		if err := e.store.UpdateAssignmentStatus(ctx, tx, a.ID, store.AssignmentStatusActive, nil, now); err != nil {
			return nil, err
		}
	}

	delta := store.CounterDelta{Pending: -1, Running: 1}
	if err := e.store.BumpJobCounters(ctx, tx, j.NamespaceID, delta); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	j.Status = store.JobStatusRunning
	j.StartedAt = &now
	e.log.Info("job claimed", "job_id", j.ID, "group_id", j.GroupID, "harness", j.Harness)
	return j, nil
}

// CompleteJob records a successful result and settles the group. When the
// completion turns the group terminal, the aggregated result is written and
// appended to the assignment's artifacts in the same transaction.
func (e *Engine) CompleteJob(ctx context.Context, id uuid.UUID, result string) (*store.Job, error) {
	return e.finishJob(ctx, id, store.JobStatusComplete, &result)
}

// FailJob records a failure. The error message is optional; failed jobs are
// excluded from aggregation either way.
func (e *Engine) FailJob(ctx context.Context, id uuid.UUID, errMsg *string) (*store.Job, error) {
	return e.finishJob(ctx, id, store.JobStatusFailed, errMsg)
}

func (e *Engine) finishJob(ctx context.Context, id uuid.UUID, status store.JobStatus, result *string) (*store.Job, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	j, err := e.store.GetJobByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := e.now()
	ok, err := e.store.MarkJobTerminal(ctx, tx, j.ID, status, result, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s is %s, want running", ErrInvalidTransition, j.ID, j.Status)
	}

	if err := e.settleGroup(ctx, tx, j.GroupID, now); err != nil {
		return nil, err
	}

	delta := store.CounterDelta{Running: -1}
	if status == store.JobStatusComplete {
		delta.Complete = 1
	} else {
		delta.Failed = 1
	}
	if err := e.store.BumpJobCounters(ctx, tx, j.NamespaceID, delta); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	j.Status = status
	j.Result = result
	j.CompletedAt = &now
	e.log.Info("job finished", "job_id", j.ID, "group_id", j.GroupID, "status", status)
	return j, nil
}

// settleGroup recomputes a group's status from its jobs inside the caller's
// transaction. The first transition into a terminal status also freezes the
// aggregated result and, on success, appends it to the assignment's
// artifacts.
func (e *Engine) settleGroup(ctx context.Context, tx store.DBTransaction, groupID uuid.UUID, now time.Time) error {
	g, err := e.store.GetGroupByID(ctx, tx, groupID)
	if err != nil {
		return err
	}
	jobs, err := e.store.ListJobsByGroup(ctx, tx, groupID)
	if err != nil {
		return err
	}

	derived := DeriveGroupStatus(jobs)
	if derived == g.Status || g.Status.Terminal() {
		return nil
	}
	if !derived.Terminal() {
		return e.store.UpdateGroupStatus(ctx, tx, g.ID, derived, now)
	}

	aggregated := AggregateResults(jobs)
	if err := e.store.FinalizeGroup(ctx, tx, g.ID, derived, aggregated, now); err != nil {
		return err
	}
	if derived == store.GroupStatusComplete && aggregated != "" {
		a, err := e.store.GetAssignmentByID(ctx, tx, g.AssignmentID)
		if err != nil {
			return err
		}
		artifacts := a.Artifacts
		if artifacts != "" {
			artifacts += sectionSeparator
		}
		artifacts += aggregated
		if err := e.store.SetAssignmentArtifacts(ctx, tx, a.ID, artifacts, now); err != nil {
			return err
		}
	}
	return nil
}

// MetricsPatch carries a partial metrics update; nil fields are untouched.
type MetricsPatch struct {
	InputTokens  *int64
	OutputTokens *int64
	OutputBytes  *int64
	Progress     *string
}

// UpdateJobMetrics merges a patch into a job's metrics. Metrics freeze once
// the job is terminal; they are informational and never drive scheduling.
func (e *Engine) UpdateJobMetrics(ctx context.Context, id uuid.UUID, patch MetricsPatch) (*store.Job, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	j, err := e.store.GetJobByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, fmt.Errorf("%w: job %s is %s, metrics are frozen", ErrInvalidTransition, j.ID, j.Status)
	}

	m := j.Metrics
	if patch.InputTokens != nil {
		m.InputTokens = *patch.InputTokens
	}
	if patch.OutputTokens != nil {
		m.OutputTokens = *patch.OutputTokens
	}
	if patch.OutputBytes != nil {
		m.OutputBytes = *patch.OutputBytes
	}
	if patch.Progress != nil {
		m.Progress = *patch.Progress
	}

	ok, err := e.store.UpdateJobMetrics(ctx, tx, j.ID, m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s turned terminal, metrics are frozen", ErrInvalidTransition, j.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	j.Metrics = m
	return j, nil
}
