package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"baton/internal/store"
)

// CreateAssignment opens a new top-level objective in a namespace. It starts
// pending with an empty chain; work arrives later through InsertJobBatch.
func (e *Engine) CreateAssignment(ctx context.Context, namespaceID uuid.UUID, northStar string, priority int, independent bool) (*store.Assignment, error) {
	if strings.TrimSpace(northStar) == "" {
		return nil, fmt.Errorf("%w: north star is required", ErrInvalidInput)
	}
	if _, err := e.store.GetNamespaceByID(ctx, namespaceID); err != nil {
		return nil, err
	}

	now := e.now()
	a := &store.Assignment{
		ID:          uuid.New(),
		NamespaceID: namespaceID,
		NorthStar:   northStar,
		Status:      store.AssignmentStatusPending,
		Independent: independent,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.CreateAssignment(ctx, nil, a); err != nil {
		return nil, err
	}
	e.log.Info("assignment created",
		"assignment_id", a.ID,
		"namespace_id", namespaceID,
		"independent", independent,
		"priority", priority)
	return a, nil
}

// ChainGroup is one group of an assignment's chain together with its jobs.
type ChainGroup struct {
	Group store.JobGroup
	Jobs  []store.Job
}

// AssignmentView is an assignment and its chain in link order.
type AssignmentView struct {
	Assignment store.Assignment
	Groups     []ChainGroup
}

// GetAssignment returns an assignment together with its chain, walked from
// the head group. A dangling link truncates the view rather than failing it.
func (e *Engine) GetAssignment(ctx context.Context, id uuid.UUID) (*AssignmentView, error) {
	a, err := e.store.GetAssignmentByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	view := &AssignmentView{Assignment: *a}

	curID := a.HeadGroupID
	seen := make(map[uuid.UUID]bool)
	for curID != nil && !seen[*curID] {
		seen[*curID] = true
		g, err := e.store.GetGroupByID(ctx, nil, *curID)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		jobs, err := e.store.ListJobsByGroup(ctx, nil, g.ID)
		if err != nil {
			return nil, err
		}
		view.Groups = append(view.Groups, ChainGroup{Group: *g, Jobs: jobs})
		curID = g.NextGroupID
	}
	return view, nil
}

// ListAssignments returns the assignments of a namespace in creation order,
// optionally filtered by status.
func (e *Engine) ListAssignments(ctx context.Context, namespaceID uuid.UUID, statuses []store.AssignmentStatus) ([]store.Assignment, error) {
	return e.store.ListAssignmentsByNamespace(ctx, nil, namespaceID, statuses)
}

// InsertJobBatch creates a new group of jobs on an assignment's chain. The
// batch is expanded first, then the group, its jobs, and the chain link all
// land in one transaction. With afterGroupID nil the group is appended at
// the tail; otherwise it is spliced in directly after the named group.
func (e *Engine) InsertJobBatch(ctx context.Context, assignmentID uuid.UUID, afterGroupID *uuid.UUID, specs []JobSpec) (*store.JobGroup, []store.Job, error) {
	if len(specs) == 0 {
		return nil, nil, fmt.Errorf("%w: a job batch needs at least one spec", ErrInvalidInput)
	}
	for i, s := range specs {
		if !s.Type.Valid() {
			return nil, nil, fmt.Errorf("%w: spec %d has unknown job type %q", ErrInvalidInput, i, s.Type)
		}
		if s.Harness != "" && !s.Harness.Valid() {
			return nil, nil, fmt.Errorf("%w: spec %d has unknown harness %q", ErrInvalidInput, i, s.Harness)
		}
	}

	expanded := e.policy.Expand(specs)
	for i, s := range expanded {
		if s.Harness == "" {
			return nil, nil, fmt.Errorf("%w: spec %d names no harness and type %q has no expansion rule", ErrInvalidInput, i, s.Type)
		}
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := e.store.GetAssignmentByID(ctx, tx, assignmentID)
	if err != nil {
		return nil, nil, err
	}
	if a.Status == store.AssignmentStatusComplete {
		return nil, nil, fmt.Errorf("%w: assignment %s is complete", ErrInvalidTransition, a.ID)
	}

	now := e.now()
	group := &store.JobGroup{
		ID:           uuid.New(),
		AssignmentID: a.ID,
		NamespaceID:  a.NamespaceID,
		Status:       store.GroupStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var splice *store.JobGroup
	if afterGroupID != nil {
		splice, err = e.store.GetGroupByID(ctx, tx, *afterGroupID)
		if err != nil {
			return nil, nil, err
		}
		if splice.AssignmentID != a.ID {
			return nil, nil, fmt.Errorf("%w: group %s belongs to another assignment", ErrConflict, splice.ID)
		}
		group.NextGroupID = splice.NextGroupID
	}

	if err := e.store.CreateGroup(ctx, tx, group); err != nil {
		return nil, nil, err
	}

	jobs := make([]*store.Job, 0, len(expanded))
	for i, s := range expanded {
		j := &store.Job{
			ID:           uuid.New(),
			GroupID:      group.ID,
			AssignmentID: a.ID,
			NamespaceID:  a.NamespaceID,
			Seq:          i,
			Type:         s.Type,
			Harness:      s.Harness,
			Status:       store.JobStatusPending,
			CreatedAt:    now,
		}
		if s.Context != "" {
			c := s.Context
			j.Context = &c
		}
		if s.Prompt != "" {
			p := s.Prompt
			j.Prompt = &p
		}
		jobs = append(jobs, j)
	}
	if err := e.store.CreateJobs(ctx, tx, jobs); err != nil {
		return nil, nil, err
	}

	switch {
	case splice != nil:
		if err := e.store.SetGroupNext(ctx, tx, splice.ID, &group.ID, now); err != nil {
			return nil, nil, err
		}
	case a.HeadGroupID == nil:
		if err := e.store.SetAssignmentHead(ctx, tx, a.ID, group.ID, now); err != nil {
			return nil, nil, err
		}
	default:
		tail, err := e.resolveTail(ctx, tx, *a.HeadGroupID, group.ID)
		if err != nil {
			return nil, nil, err
		}
		if err := e.store.SetGroupNext(ctx, tx, tail.ID, &group.ID, now); err != nil {
			return nil, nil, err
		}
	}

	if err := e.store.BumpJobCounters(ctx, tx, a.NamespaceID, store.CounterDelta{Pending: int64(len(jobs))}); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}

	out := make([]store.Job, len(jobs))
	for i, j := range jobs {
		out[i] = *j
	}
	e.log.Info("job batch inserted",
		"assignment_id", a.ID,
		"group_id", group.ID,
		"jobs", len(out))
	return group, out, nil
}

// resolveTail walks the chain from head and returns the last reachable
// group, skipping the group being inserted. A dangling link ends the walk at
// the last resolvable group; a cycle is a structural fault and errors out.
func (e *Engine) resolveTail(ctx context.Context, tx store.DBTransaction, head, inserting uuid.UUID) (*store.JobGroup, error) {
	g, err := e.store.GetGroupByID(ctx, tx, head)
	if err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{g.ID: true}
	for g.NextGroupID != nil && *g.NextGroupID != inserting {
		next, err := e.store.GetGroupByID(ctx, tx, *g.NextGroupID)
		if errors.Is(err, store.ErrNotFound) {
			return g, nil
		}
		if err != nil {
			return nil, err
		}
		if seen[next.ID] {
			return nil, fmt.Errorf("%w: chain cycle at group %s", ErrConflict, next.ID)
		}
		seen[next.ID] = true
		g = next
	}
	return g, nil
}

// BlockAssignment pauses an assignment. The reason is mandatory; a block
// nobody can explain is a block nobody can lift.
func (e *Engine) BlockAssignment(ctx context.Context, id uuid.UUID, reason string) (*store.Assignment, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: a blocked assignment must carry a reason", ErrInvalidInput)
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := e.store.GetAssignmentByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case store.AssignmentStatusComplete:
		return nil, fmt.Errorf("%w: assignment %s is complete", ErrInvalidTransition, a.ID)
	case store.AssignmentStatusBlocked:
		return nil, fmt.Errorf("%w: assignment %s is already blocked", ErrInvalidTransition, a.ID)
	}

	now := e.now()
	if err := e.store.UpdateAssignmentStatus(ctx, tx, a.ID, store.AssignmentStatusBlocked, &reason, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	a.Status = store.AssignmentStatusBlocked
	a.BlockedReason = &reason
	a.UpdatedAt = now
	e.log.Info("assignment blocked", "assignment_id", a.ID, "reason", reason)
	return a, nil
}

// UnblockAssignment lifts a block. The assignment returns to active only
// when it still has a running job and activating it keeps at most one
// non-independent assignment active per namespace; otherwise it returns to
// pending and the scheduler picks it up in its turn.
func (e *Engine) UnblockAssignment(ctx context.Context, id uuid.UUID) (*store.Assignment, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := e.store.GetAssignmentByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != store.AssignmentStatusBlocked {
		return nil, fmt.Errorf("%w: assignment %s is %s, want blocked", ErrInvalidTransition, a.ID, a.Status)
	}

	target := store.AssignmentStatusPending
	running, err := e.store.CountJobsByAssignment(ctx, tx, a.ID, store.JobStatusRunning)
	if err != nil {
		return nil, err
	}
	if running > 0 {
		canActivate := a.Independent
		if !canActivate {
			ok, err := e.noOtherSequentialActive(ctx, tx, a)
			if err != nil {
				return nil, err
			}
			canActivate = ok
		}
		if canActivate {
			target = store.AssignmentStatusActive
		}
	}

	now := e.now()
	if err := e.store.UpdateAssignmentStatus(ctx, tx, a.ID, target, nil, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	a.Status = target
	a.BlockedReason = nil
	a.UpdatedAt = now
	e.log.Info("assignment unblocked", "assignment_id", a.ID, "status", target)
	return a, nil
}

// CompleteAssignment closes an assignment. Complete is terminal; the chain
// stays readable but accepts no further work.
func (e *Engine) CompleteAssignment(ctx context.Context, id uuid.UUID) (*store.Assignment, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := e.store.GetAssignmentByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == store.AssignmentStatusComplete {
		return nil, fmt.Errorf("%w: assignment %s is already complete", ErrInvalidTransition, a.ID)
	}

	now := e.now()
	if err := e.store.UpdateAssignmentStatus(ctx, tx, a.ID, store.AssignmentStatusComplete, nil, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	a.Status = store.AssignmentStatusComplete
	a.BlockedReason = nil
	a.UpdatedAt = now
	e.log.Info("assignment completed", "assignment_id", a.ID)
	return a, nil
}

// RecordDecision appends a timestamped entry to the assignment's decision
// log. Decisions are append-only; nothing ever rewrites an earlier entry.
func (e *Engine) RecordDecision(ctx context.Context, id uuid.UUID, text string) (*store.Assignment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: decision text is required", ErrInvalidInput)
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := e.store.GetAssignmentByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := e.now()
	entry := fmt.Sprintf("[%s] %s", now.UTC().Format(time.RFC3339), text)
	decisions := a.Decisions
	if decisions != "" {
		decisions += "\n"
	}
	decisions += entry
	if err := e.store.SetAssignmentDecisions(ctx, tx, a.ID, decisions, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	a.Decisions = decisions
	a.UpdatedAt = now
	return a, nil
}

// noOtherSequentialActive reports whether activating a would keep the
// one-active-sequential-assignment rule intact for its namespace. The lock
// keeps two concurrent activations from both passing the check.
func (e *Engine) noOtherSequentialActive(ctx context.Context, tx store.DBTransaction, a *store.Assignment) (bool, error) {
	if err := e.store.LockSequentialAssignments(ctx, tx, a.NamespaceID); err != nil {
		return false, err
	}
	active, err := e.store.ListAssignmentsByNamespace(ctx, tx, a.NamespaceID, []store.AssignmentStatus{store.AssignmentStatusActive})
	if err != nil {
		return false, err
	}
	for _, other := range active {
		if !other.Independent && other.ID != a.ID {
			return false, nil
		}
	}
	return true, nil
}
