package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"baton/internal/engine"
	"baton/internal/store"
)

// guardedAssignment builds the shape every evaluation starts from: an
// assignment with a guardian thread and one terminal reporting group.
func guardedAssignment(t *testing.T, env *testEnv) (*store.Assignment, *store.JobGroup) {
	t.Helper()
	a := env.createAssignment(t, "keep the refactor honest", 0, true)
	if _, err := env.Engine.CreateThread(env.Ctx, env.NS.ID, &a.ID, store.ThreadModeGuardian, "watchtower"); err != nil {
		t.Fatalf("create guardian thread: %v", err)
	}
	g, jobs := env.enqueue(t, a.ID, spec(store.JobTypePM, store.HarnessClaude))
	env.run(t, jobs[0].ID, "phase report: on track")
	return a, g
}

func TestCreateThreadValidation(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "observed", 0, false)

	if _, err := env.Engine.CreateThread(env.Ctx, env.NS.ID, nil, "karaoke", "t"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("unknown mode: %v, want invalid input", err)
	}
	if _, err := env.Engine.CreateThread(env.Ctx, uuid.New(), nil, store.ThreadModeJam, "t"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown namespace: %v, want not found", err)
	}

	other, err := env.Engine.CreateNamespace(env.Ctx, "zenith", "", "other-hash")
	if err != nil {
		t.Fatalf("second namespace: %v", err)
	}
	if _, err := env.Engine.CreateThread(env.Ctx, other.ID, &a.ID, store.ThreadModeGuardian, "t"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("cross-namespace link: %v, want conflict", err)
	}

	if _, err := env.Engine.CreateThread(env.Ctx, env.NS.ID, &a.ID, store.ThreadModeJam, "first"); err != nil {
		t.Fatalf("first thread: %v", err)
	}
	if _, err := env.Engine.CreateThread(env.Ctx, env.NS.ID, &a.ID, store.ThreadModeCook, "second"); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("second thread on one assignment: %v, want duplicate", err)
	}
}

func TestGuardianThreadArmsAlignment(t *testing.T) {
	env := newTestEnv(t)
	watched := env.createAssignment(t, "watched", 0, true)
	casual := env.createAssignment(t, "casual", 0, true)

	if _, err := env.Engine.CreateThread(env.Ctx, env.NS.ID, &watched.ID, store.ThreadModeGuardian, "w"); err != nil {
		t.Fatalf("guardian thread: %v", err)
	}
	if _, err := env.Engine.CreateThread(env.Ctx, env.NS.ID, &casual.ID, store.ThreadModeJam, "c"); err != nil {
		t.Fatalf("jam thread: %v", err)
	}

	if got := env.assignment(t, watched.ID); got.Alignment == nil || *got.Alignment != store.AlignmentAligned {
		t.Fatalf("guardian link must arm alignment, got %v", got.Alignment)
	}
	if got := env.assignment(t, casual.ID); got.Alignment != nil {
		t.Fatalf("jam link must not arm alignment, got %v", *got.Alignment)
	}
}

func TestSetThreadModeArmsButKeepsJudgement(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "mode churn", 0, true)
	th, err := env.Engine.CreateThread(env.Ctx, env.NS.ID, &a.ID, store.ThreadModeJam, "chatty")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if got := env.assignment(t, a.ID); got.Alignment != nil {
		t.Fatalf("jam thread must not arm alignment, got %v", *got.Alignment)
	}

	if _, err := env.Engine.SetThreadMode(env.Ctx, th.ID, store.ThreadModeGuardian); err != nil {
		t.Fatalf("enter guardian mode: %v", err)
	}
	if got := env.assignment(t, a.ID); got.Alignment == nil || *got.Alignment != store.AlignmentAligned {
		t.Fatalf("entering guardian mode must arm alignment, got %v", got.Alignment)
	}

	g, jobs := env.enqueue(t, a.ID, spec(store.JobTypePM, store.HarnessClaude))
	env.run(t, jobs[0].ID, "might be drifting")
	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g.ID, store.AlignmentUncertain, "hard to tell"); err != nil {
		t.Fatalf("apply verdict: %v", err)
	}

	if _, err := env.Engine.SetThreadMode(env.Ctx, th.ID, store.ThreadModeJam); err != nil {
		t.Fatalf("leave guardian mode: %v", err)
	}
	if _, err := env.Engine.SetThreadMode(env.Ctx, th.ID, store.ThreadModeGuardian); err != nil {
		t.Fatalf("re-enter guardian mode: %v", err)
	}
	if got := env.assignment(t, a.ID); got.Alignment == nil || *got.Alignment != store.AlignmentUncertain {
		t.Fatalf("re-arming must keep the judgement on record, got %v", got.Alignment)
	}
}

func TestSetThreadModeRejectsUnknownMode(t *testing.T) {
	env := newTestEnv(t)
	th, err := env.Engine.CreateThread(env.Ctx, env.NS.ID, nil, store.ThreadModeJam, "loose")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if _, err := env.Engine.SetThreadMode(env.Ctx, th.ID, "karaoke"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("unknown mode: %v, want invalid input", err)
	}
}

func TestPendingEvaluationsQueue(t *testing.T) {
	env := newTestEnv(t)

	// an unmonitored assignment's report never queues
	loose := env.createAssignment(t, "unmonitored", 0, true)
	_, looseJobs := env.enqueue(t, loose.ID, spec(store.JobTypePM, store.HarnessClaude))
	env.run(t, looseJobs[0].ID, "nobody is watching")

	a, g := guardedAssignment(t, env)

	pending, err := env.Engine.PendingEvaluations(env.Ctx, env.NS.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending evaluations, want 1", len(pending))
	}
	p := pending[0]
	if p.Group.ID != g.ID || p.Assignment.ID != a.ID {
		t.Fatalf("queued the wrong group: %+v", p)
	}
	if p.Report != "## pm\n\nphase report: on track" {
		t.Fatalf("report = %q", p.Report)
	}

	// exactly one verdict clears the queue entry
	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g.ID, store.AlignmentAligned, "on track"); err != nil {
		t.Fatalf("apply verdict: %v", err)
	}
	pending, err = env.Engine.PendingEvaluations(env.Ctx, env.NS.ID)
	if err != nil {
		t.Fatalf("pending after verdict: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("evaluated group still queued: %d", len(pending))
	}

	// a terminal non-reporting group never queues
	_, implJobs := env.enqueue(t, a.ID, spec(store.JobTypeImplement, store.HarnessClaude))
	env.run(t, implJobs[0].ID, "code written")
	pending, err = env.Engine.PendingEvaluations(env.Ctx, env.NS.ID)
	if err != nil {
		t.Fatalf("pending after implement group: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("non-reporting group queued for evaluation: %d", len(pending))
	}
}

func TestApplyAlignmentRecordsEvaluation(t *testing.T) {
	env := newTestEnv(t)
	a, g := guardedAssignment(t, env)

	eval, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g.ID, store.AlignmentUncertain, "report is vague about scope")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if eval.AssignmentID != a.ID || eval.GroupID != g.ID {
		t.Fatalf("evaluation links = %+v", eval)
	}
	if eval.Status != store.AlignmentUncertain || eval.Rationale != "report is vague about scope" {
		t.Fatalf("evaluation = %+v", eval)
	}

	got := env.assignment(t, a.ID)
	if got.Alignment == nil || *got.Alignment != store.AlignmentUncertain {
		t.Fatalf("assignment alignment = %v", got.Alignment)
	}
	if got.Status == store.AssignmentStatusBlocked {
		t.Fatalf("uncertain verdict must not block")
	}

	history, err := env.Engine.ListEvaluations(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("list evaluations: %v", err)
	}
	if len(history) != 1 || history[0].ID != eval.ID {
		t.Fatalf("history = %+v", history)
	}
}

func TestApplyAlignmentNeedsGuardianThread(t *testing.T) {
	env := newTestEnv(t)

	bare := env.createAssignment(t, "bare", 0, true)
	g, jobs := env.enqueue(t, bare.ID, spec(store.JobTypePM, store.HarnessClaude))
	env.run(t, jobs[0].ID, "report")
	if _, err := env.Engine.ApplyAlignment(env.Ctx, bare.ID, g.ID, store.AlignmentAligned, ""); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("no thread: %v, want conflict", err)
	}

	chatty := env.createAssignment(t, "chatty", 0, true)
	if _, err := env.Engine.CreateThread(env.Ctx, env.NS.ID, &chatty.ID, store.ThreadModeCook, "c"); err != nil {
		t.Fatalf("cook thread: %v", err)
	}
	g2, jobs2 := env.enqueue(t, chatty.ID, spec(store.JobTypePM, store.HarnessCodex))
	env.run(t, jobs2[0].ID, "report")
	if _, err := env.Engine.ApplyAlignment(env.Ctx, chatty.ID, g2.ID, store.AlignmentAligned, ""); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("cook-mode thread: %v, want conflict", err)
	}
}

func TestApplyAlignmentGroupChecks(t *testing.T) {
	env := newTestEnv(t)
	a, g := guardedAssignment(t, env)

	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g.ID, "sideways", "r"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("unknown verdict: %v, want invalid input", err)
	}

	_, foreign := guardedAssignment(t, env)
	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, foreign.ID, store.AlignmentAligned, ""); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("another assignment's group: %v, want conflict", err)
	}

	implGroup, implJobs := env.enqueue(t, a.ID, spec(store.JobTypeImplement, store.HarnessClaude))
	env.run(t, implJobs[0].ID, "code")
	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, implGroup.ID, store.AlignmentAligned, ""); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("non-reporting group: %v, want conflict", err)
	}

	stillPending, _ := env.enqueue(t, a.ID, spec(store.JobTypePM, store.HarnessCodex))
	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, stillPending.ID, store.AlignmentAligned, ""); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("non-terminal group: %v, want conflict", err)
	}
}

func TestEachGroupEvaluatedExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	a, g := guardedAssignment(t, env)

	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g.ID, store.AlignmentAligned, "fine"); err != nil {
		t.Fatalf("first verdict: %v", err)
	}
	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g.ID, store.AlignmentUncertain, "second thoughts"); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("second verdict on one group: %v, want duplicate", err)
	}
}

func TestMisalignedVerdictBlocksInTheSameStroke(t *testing.T) {
	env := newTestEnv(t)
	a, g := guardedAssignment(t, env)
	env.enqueue(t, a.ID, spec(store.JobTypeUAT, store.HarnessClaude))

	if got := env.ready(t); len(got) != 1 {
		t.Fatalf("precondition: got %d ready", len(got))
	}

	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g.ID, store.AlignmentMisaligned, "optimizing the wrong metric"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := env.assignment(t, a.ID)
	if got.Status != store.AssignmentStatusBlocked {
		t.Fatalf("misaligned verdict must block, got %s", got.Status)
	}
	if deref(got.BlockedReason) != "guardian: optimizing the wrong metric" {
		t.Fatalf("blocked reason = %q", deref(got.BlockedReason))
	}
	if got.Alignment == nil || *got.Alignment != store.AlignmentMisaligned {
		t.Fatalf("alignment = %v", got.Alignment)
	}
	if got := env.ready(t); len(got) != 0 {
		t.Fatalf("blocked assignment still dispatches %d jobs", len(got))
	}
}

func TestMisalignedWithoutRationaleGetsDefaultReason(t *testing.T) {
	env := newTestEnv(t)
	a, g := guardedAssignment(t, env)

	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g.ID, store.AlignmentMisaligned, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := env.assignment(t, a.ID); deref(got.BlockedReason) != "guardian: alignment drift detected" {
		t.Fatalf("blocked reason = %q", deref(got.BlockedReason))
	}
}

func TestMisalignedNeverRepeats(t *testing.T) {
	env := newTestEnv(t)
	a, g1 := guardedAssignment(t, env)
	g2, jobs2 := env.enqueue(t, a.ID, spec(store.JobTypePM, store.HarnessCodex))
	env.run(t, jobs2[0].ID, "still drifting")

	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g1.ID, store.AlignmentMisaligned, "drift"); err != nil {
		t.Fatalf("first misaligned: %v", err)
	}
	env.advance(time.Second)
	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g2.ID, store.AlignmentMisaligned, "still drift"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("repeat misaligned: %v, want invalid transition", err)
	}

	// a recovery verdict moves the needle but leaves the block for an operator
	if _, err := env.Engine.ApplyAlignment(env.Ctx, a.ID, g2.ID, store.AlignmentAligned, "course corrected"); err != nil {
		t.Fatalf("recovery verdict: %v", err)
	}
	got := env.assignment(t, a.ID)
	if got.Alignment == nil || *got.Alignment != store.AlignmentAligned {
		t.Fatalf("alignment = %v", got.Alignment)
	}
	if got.Status != store.AssignmentStatusBlocked {
		t.Fatalf("the guardian lifts alignment, the operator lifts the block; got %s", got.Status)
	}

	history, err := env.Engine.ListEvaluations(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("list evaluations: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2 (the rejected verdict leaves no record)", len(history))
	}
	if history[0].Status != store.AlignmentMisaligned || history[1].Status != store.AlignmentAligned {
		t.Fatalf("history = [%s, %s]", history[0].Status, history[1].Status)
	}
}
