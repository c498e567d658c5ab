package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"baton/internal/store"
)

// PriorResult is one completed job's output carried forward to the next
// dispatchable group in the same chain.
type PriorResult struct {
	JobType    store.JobType
	Harness    store.Harness
	Result     string
	GroupIndex int
}

// ReadyJob is a dispatchable job bundled with its group, its assignment,
// and the context a runner needs to build its prompt.
type ReadyJob struct {
	Job        store.Job
	Group      store.JobGroup
	Assignment store.Assignment
	Prior      []PriorResult
}

// ReadyJobs returns every job that may be dispatched right now for a
// namespace. The call never mutates anything; polling it repeatedly without
// claims returns the same set.
//
// Assignment eligibility: blocked and complete assignments are skipped
// outright. Independent assignments all participate. Of the sequential ones,
// exactly one participates: the active one if any, otherwise the pending
// assignment with the lowest priority value (ties broken by creation time).
//
// Per assignment, the chain is walked from the head. A group with any
// running job stops the walk cold. A fully pending group is dispatched whole
// with the context accumulated so far. A terminal group contributes its
// completed results to that context and the walk advances; when the group is
// a reporting group the buffer is reset first, so the report replaces
// everything before it. A partially finished group that is no longer running
// also stops the walk: a second wave is never dispatched into a batch that
// already started.
func (e *Engine) ReadyJobs(ctx context.Context, namespaceID uuid.UUID) ([]ReadyJob, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	assignments, err := e.store.ListAssignmentsByNamespace(ctx, tx, namespaceID, []store.AssignmentStatus{
		store.AssignmentStatusPending,
		store.AssignmentStatusActive,
	})
	if err != nil {
		return nil, err
	}

	eligible := eligibleAssignments(assignments)
	var ready []ReadyJob
	for i := range eligible {
		jobs, err := e.walkChain(ctx, tx, &eligible[i])
		if err != nil {
			return nil, err
		}
		ready = append(ready, jobs...)
	}
	return ready, nil
}

// eligibleAssignments filters to the assignments allowed to dispatch:
// all independent ones plus at most one sequential one. Input order
// (creation time) is preserved.
func eligibleAssignments(assignments []store.Assignment) []store.Assignment {
	var pick *store.Assignment
	for i := range assignments {
		a := &assignments[i]
		if a.Independent {
			continue
		}
		if a.Status == store.AssignmentStatusActive {
			if pick == nil || pick.Status != store.AssignmentStatusActive || a.CreatedAt.Before(pick.CreatedAt) {
				pick = a
			}
			continue
		}
		if pick != nil && pick.Status == store.AssignmentStatusActive {
			continue
		}
		if pick == nil || a.Priority < pick.Priority ||
			(a.Priority == pick.Priority && a.CreatedAt.Before(pick.CreatedAt)) {
			pick = a
		}
	}

	out := make([]store.Assignment, 0, len(assignments))
	for i := range assignments {
		a := &assignments[i]
		if a.Independent || (pick != nil && a.ID == pick.ID) {
			out = append(out, *a)
		}
	}
	return out
}

// walkChain follows one assignment's chain and returns the jobs of the
// first dispatchable group, or nothing when the chain is running, exhausted,
// or structurally truncated.
func (e *Engine) walkChain(ctx context.Context, tx store.DBTransaction, a *store.Assignment) ([]ReadyJob, error) {
	var prior []PriorResult
	curID := a.HeadGroupID
	seen := make(map[uuid.UUID]bool)
	idx := 0

	for curID != nil && !seen[*curID] {
		seen[*curID] = true
		g, err := e.store.GetGroupByID(ctx, tx, *curID)
		if errors.Is(err, store.ErrNotFound) {
			// dangling link: treat as end of chain
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		jobs, err := e.store.ListJobsByGroup(ctx, tx, g.ID)
		if err != nil {
			return nil, err
		}

		status := DeriveGroupStatus(jobs)
		switch {
		case status == store.GroupStatusRunning:
			return nil, nil

		case status == store.GroupStatusPending:
			for _, j := range jobs {
				if j.Status.Terminal() {
					// a batch that partially finished without anything
					// running needs an operator, not a second wave
					return nil, nil
				}
			}
			carried := append([]PriorResult(nil), prior...)
			ready := make([]ReadyJob, 0, len(jobs))
			for _, j := range jobs {
				ready = append(ready, ReadyJob{
					Job:        j,
					Group:      *g,
					Assignment: *a,
					Prior:      carried,
				})
			}
			return ready, nil

		default: // terminal: accumulate and advance
			if groupReporting(jobs) {
				prior = prior[:0]
			}
			for _, j := range jobs {
				if j.Status != store.JobStatusComplete || j.Result == nil {
					continue
				}
				prior = append(prior, PriorResult{
					JobType:    j.Type,
					Harness:    j.Harness,
					Result:     *j.Result,
					GroupIndex: idx,
				})
			}
			curID = g.NextGroupID
			idx++
		}
	}
	return nil, nil
}
