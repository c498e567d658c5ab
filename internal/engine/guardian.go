package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"baton/internal/store"
)

// alignmentTransitions lists the judgements reachable from each state.
// Misaligned never transitions to itself: once drift is declared, the next
// evaluation has to move the needle or it is noise.
var alignmentTransitions = map[store.Alignment][]store.Alignment{
	store.AlignmentAligned:    {store.AlignmentAligned, store.AlignmentUncertain, store.AlignmentMisaligned},
	store.AlignmentUncertain:  {store.AlignmentAligned, store.AlignmentUncertain, store.AlignmentMisaligned},
	store.AlignmentMisaligned: {store.AlignmentAligned, store.AlignmentUncertain},
}

func alignmentTransitionAllowed(from, to store.Alignment) bool {
	for _, t := range alignmentTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CreateThread opens a chat thread, optionally linked to one assignment.
// Linking a guardian-mode thread arms alignment tracking: an assignment
// without a judgement starts out aligned.
func (e *Engine) CreateThread(ctx context.Context, namespaceID uuid.UUID, assignmentID *uuid.UUID, mode store.ThreadMode, title string) (*store.ChatThread, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown thread mode %q", ErrInvalidInput, mode)
	}
	if _, err := e.store.GetNamespaceByID(ctx, namespaceID); err != nil {
		return nil, err
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := e.now()
	var linked *store.Assignment
	if assignmentID != nil {
		linked, err = e.store.GetAssignmentByID(ctx, tx, *assignmentID)
		if err != nil {
			return nil, err
		}
		if linked.NamespaceID != namespaceID {
			return nil, fmt.Errorf("%w: assignment %s belongs to another namespace", ErrConflict, linked.ID)
		}
		_, err := e.store.GetThreadByAssignment(ctx, tx, linked.ID)
		if err == nil {
			return nil, fmt.Errorf("%w: assignment %s already has a thread", store.ErrDuplicate, linked.ID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	t := &store.ChatThread{
		ID:           uuid.New(),
		NamespaceID:  namespaceID,
		AssignmentID: assignmentID,
		Mode:         mode,
		Title:        title,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateThread(ctx, tx, t); err != nil {
		return nil, err
	}
	if mode == store.ThreadModeGuardian && linked != nil && linked.Alignment == nil {
		if err := e.store.UpdateAssignmentAlignment(ctx, tx, linked.ID, store.AlignmentAligned, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	e.log.Info("thread created", "thread_id", t.ID, "mode", mode)
	return t, nil
}

// GetThread returns a thread by ID.
func (e *Engine) GetThread(ctx context.Context, id uuid.UUID) (*store.ChatThread, error) {
	return e.store.GetThreadByID(ctx, nil, id)
}

// SetThreadMode switches a thread's mode. Entering guardian mode arms
// alignment tracking for the linked assignment; a judgement already on
// record is kept, never reset.
func (e *Engine) SetThreadMode(ctx context.Context, id uuid.UUID, mode store.ThreadMode) (*store.ChatThread, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown thread mode %q", ErrInvalidInput, mode)
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := e.store.GetThreadByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if t.Mode != mode {
		if err := e.store.UpdateThreadMode(ctx, tx, t.ID, mode, now); err != nil {
			return nil, err
		}
	}
	if mode == store.ThreadModeGuardian && t.AssignmentID != nil {
		a, err := e.store.GetAssignmentByID(ctx, tx, *t.AssignmentID)
		if err != nil {
			return nil, err
		}
		if a.Alignment == nil {
			if err := e.store.UpdateAssignmentAlignment(ctx, tx, a.ID, store.AlignmentAligned, now); err != nil {
				return nil, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	t.Mode = mode
	t.UpdatedAt = now
	return t, nil
}

// PendingEvaluation is a terminal reporting group awaiting a guardian
// judgement.
type PendingEvaluation struct {
	Group      store.JobGroup
	Assignment store.Assignment
	Report     string
}

// PendingEvaluations lists the terminal reporting groups in a namespace
// whose assignments are guardian-monitored and which have not been judged
// yet. Each group appears until exactly one evaluation lands for it.
func (e *Engine) PendingEvaluations(ctx context.Context, namespaceID uuid.UUID) ([]PendingEvaluation, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	groups, err := e.store.ListUnevaluatedGroups(ctx, tx, namespaceID, store.ReportingJobTypes())
	if err != nil {
		return nil, err
	}

	out := make([]PendingEvaluation, 0, len(groups))
	for _, g := range groups {
		a, err := e.store.GetAssignmentByID(ctx, tx, g.AssignmentID)
		if err != nil {
			return nil, err
		}
		report := ""
		if g.AggregatedResult != nil {
			report = *g.AggregatedResult
		}
		out = append(out, PendingEvaluation{Group: g, Assignment: *a, Report: report})
	}
	return out, nil
}

// ApplyAlignment records a guardian judgement for one terminal reporting
// group and moves the assignment's alignment accordingly. A misaligned
// verdict blocks the assignment in the same transaction, so there is no
// window where a drifting assignment can still dispatch. Each group accepts
// exactly one evaluation.
func (e *Engine) ApplyAlignment(ctx context.Context, assignmentID, groupID uuid.UUID, verdict store.Alignment, rationale string) (*store.GuardianEvaluation, error) {
	if !verdict.Valid() {
		return nil, fmt.Errorf("%w: unknown alignment %q", ErrInvalidInput, verdict)
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := e.store.GetAssignmentByID(ctx, tx, assignmentID)
	if err != nil {
		return nil, err
	}
	thread, err := e.store.GetThreadByAssignment(ctx, tx, a.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: assignment %s has no thread", ErrConflict, a.ID)
	}
	if err != nil {
		return nil, err
	}
	if thread.Mode != store.ThreadModeGuardian {
		return nil, fmt.Errorf("%w: thread %s is in %s mode, want guardian", ErrConflict, thread.ID, thread.Mode)
	}

	g, err := e.store.GetGroupByID(ctx, tx, groupID)
	if err != nil {
		return nil, err
	}
	if g.AssignmentID != a.ID {
		return nil, fmt.Errorf("%w: group %s belongs to another assignment", ErrConflict, g.ID)
	}
	if !g.Status.Terminal() {
		return nil, fmt.Errorf("%w: group %s is %s, want terminal", ErrConflict, g.ID, g.Status)
	}
	jobs, err := e.store.ListJobsByGroup(ctx, tx, g.ID)
	if err != nil {
		return nil, err
	}
	if !groupReporting(jobs) {
		return nil, fmt.Errorf("%w: group %s is not a reporting group", ErrConflict, g.ID)
	}

	if _, err := e.store.GetEvaluationByGroup(ctx, tx, g.ID); err == nil {
		return nil, fmt.Errorf("%w: group %s is already evaluated", store.ErrDuplicate, g.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	current := store.AlignmentAligned
	if a.Alignment != nil {
		current = *a.Alignment
	}
	if !alignmentTransitionAllowed(current, verdict) {
		return nil, fmt.Errorf("%w: alignment cannot move from %s to %s", ErrInvalidTransition, current, verdict)
	}

	now := e.now()
	eval := &store.GuardianEvaluation{
		ID:           uuid.New(),
		AssignmentID: a.ID,
		GroupID:      g.ID,
		Status:       verdict,
		Rationale:    rationale,
		CreatedAt:    now,
	}
	if err := e.store.CreateEvaluation(ctx, tx, eval); err != nil {
		return nil, err
	}
	if err := e.store.UpdateAssignmentAlignment(ctx, tx, a.ID, verdict, now); err != nil {
		return nil, err
	}

	if verdict == store.AlignmentMisaligned &&
		a.Status != store.AssignmentStatusBlocked &&
		a.Status != store.AssignmentStatusComplete {
		reason := "guardian: " + rationale
		if rationale == "" {
			reason = "guardian: alignment drift detected"
		}
		if err := e.store.UpdateAssignmentStatus(ctx, tx, a.ID, store.AssignmentStatusBlocked, &reason, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	e.log.Info("alignment applied",
		"assignment_id", a.ID,
		"group_id", g.ID,
		"verdict", verdict)
	return eval, nil
}

// ListEvaluations returns the evaluation history of an assignment.
func (e *Engine) ListEvaluations(ctx context.Context, assignmentID uuid.UUID) ([]store.GuardianEvaluation, error) {
	return e.store.ListEvaluationsByAssignment(ctx, nil, assignmentID)
}
