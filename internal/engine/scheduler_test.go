package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"baton/internal/engine"
	"baton/internal/store"
)

func TestReadyJobsDispatchesWholePendingBatch(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "ship the widget", 0, false)
	g1, g1jobs := env.enqueue(t, a.ID,
		spec(store.JobTypeImplement, store.HarnessClaude),
		spec(store.JobTypeImplement, store.HarnessCodex),
	)
	env.enqueue(t, a.ID, spec(store.JobTypeUAT, store.HarnessGemini))

	ready := env.ready(t)
	if len(ready) != 2 {
		t.Fatalf("want both jobs of the first group, got %d", len(ready))
	}
	seen := map[uuid.UUID]bool{}
	for _, r := range ready {
		if r.Job.GroupID != g1.ID {
			t.Fatalf("job %s dispatched from group %s, want %s", r.Job.ID, r.Job.GroupID, g1.ID)
		}
		if r.Group.ID != g1.ID || r.Assignment.ID != a.ID {
			t.Fatalf("ready job not bundled with its group and assignment")
		}
		seen[r.Job.ID] = true
	}
	for _, j := range g1jobs {
		if !seen[j.ID] {
			t.Fatalf("job %s missing from ready set", j.ID)
		}
	}

	// polling without claiming changes nothing
	again := env.ready(t)
	if len(again) != 2 {
		t.Fatalf("ready set not stable across polls: got %d", len(again))
	}
}

func TestRunningBatchBlocksAssignmentDispatch(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "one batch at a time", 0, false)
	_, jobs := env.enqueue(t, a.ID,
		spec(store.JobTypeImplement, store.HarnessClaude),
		spec(store.JobTypeImplement, store.HarnessCodex),
	)
	env.enqueue(t, a.ID, spec(store.JobTypeUAT, store.HarnessGemini))

	env.claim(t, jobs[0].ID)
	if got := env.ready(t); len(got) != 0 {
		t.Fatalf("a running batch must block dispatch, got %d ready jobs", len(got))
	}
}

func TestChainAdvanceCarriesResultsForward(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "ship the widget", 0, false)
	g1, g1jobs := env.enqueue(t, a.ID,
		spec(store.JobTypeImplement, store.HarnessClaude),
		spec(store.JobTypeImplement, store.HarnessCodex),
	)
	_, g2jobs := env.enqueue(t, a.ID, spec(store.JobTypeUAT, store.HarnessGemini))

	env.claim(t, g1jobs[0].ID)
	env.claim(t, g1jobs[1].ID)
	env.complete(t, g1jobs[0].ID, "alpha output")
	env.fail(t, g1jobs[1].ID, "exploded")

	g1After := env.group(t, g1.ID)
	if g1After.Status != store.GroupStatusComplete {
		t.Fatalf("group with one success is %s, want complete", g1After.Status)
	}
	if g1After.AggregatedResult == nil || *g1After.AggregatedResult != "## implement A\n\nalpha output" {
		t.Fatalf("aggregated result = %q", deref(g1After.AggregatedResult))
	}

	ready := env.ready(t)
	if len(ready) != 1 || ready[0].Job.ID != g2jobs[0].ID {
		t.Fatalf("want the next group's job after the first turned terminal")
	}
	prior := ready[0].Prior
	if len(prior) != 1 {
		t.Fatalf("want one carried result (the failed job contributes nothing), got %d", len(prior))
	}
	if prior[0].Result != "alpha output" ||
		prior[0].JobType != store.JobTypeImplement ||
		prior[0].Harness != store.HarnessClaude ||
		prior[0].GroupIndex != 0 {
		t.Fatalf("carried result = %+v", prior[0])
	}
}

func TestReportingGroupResetsCarriedContext(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "multi phase", 0, false)
	_, phase1 := env.enqueue(t, a.ID, spec(store.JobTypeImplement, store.HarnessClaude))
	_, report := env.enqueue(t, a.ID, spec(store.JobTypePM, store.HarnessClaude))
	_, phase2 := env.enqueue(t, a.ID, spec(store.JobTypeUAT, store.HarnessClaude))

	env.run(t, phase1[0].ID, "phase one notes")

	ready := env.ready(t)
	if len(ready) != 1 || ready[0].Job.ID != report[0].ID {
		t.Fatalf("want the reporting job next")
	}
	if len(ready[0].Prior) != 1 || ready[0].Prior[0].Result != "phase one notes" {
		t.Fatalf("reporting job should see phase one output, got %+v", ready[0].Prior)
	}

	env.run(t, report[0].ID, "status report")

	ready = env.ready(t)
	if len(ready) != 1 || ready[0].Job.ID != phase2[0].ID {
		t.Fatalf("want the post-report job next")
	}
	prior := ready[0].Prior
	if len(prior) != 1 {
		t.Fatalf("report must replace earlier context, got %d entries", len(prior))
	}
	if prior[0].Result != "status report" || prior[0].JobType != store.JobTypePM || prior[0].GroupIndex != 1 {
		t.Fatalf("carried entry = %+v", prior[0])
	}
}

func TestFailedGroupStillAdvancesChain(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "fail forward", 0, false)
	g1, g1jobs := env.enqueue(t, a.ID, spec(store.JobTypeImplement, store.HarnessClaude))
	_, g2jobs := env.enqueue(t, a.ID, spec(store.JobTypeUAT, store.HarnessClaude))

	env.claim(t, g1jobs[0].ID)
	env.fail(t, g1jobs[0].ID, "boom")

	if g := env.group(t, g1.ID); g.Status != store.GroupStatusFailed || deref(g.AggregatedResult) != "" {
		t.Fatalf("all-failed group: status=%s aggregate=%q", g.Status, deref(g.AggregatedResult))
	}

	ready := env.ready(t)
	if len(ready) != 1 || ready[0].Job.ID != g2jobs[0].ID {
		t.Fatalf("chain must advance past a failed group")
	}
	if len(ready[0].Prior) != 0 {
		t.Fatalf("failed group contributes no carried results, got %+v", ready[0].Prior)
	}
}

func TestSequentialAssignmentsDispatchByPriority(t *testing.T) {
	env := newTestEnv(t)
	low := env.createAssignment(t, "low urgency", 5, false)
	high := env.createAssignment(t, "high urgency", 1, false)
	_, lowJobs := env.enqueue(t, low.ID, spec(store.JobTypeUAT, store.HarnessClaude))
	_, highJobs := env.enqueue(t, high.ID, spec(store.JobTypeUAT, store.HarnessCodex))

	ready := env.ready(t)
	if len(ready) != 1 || ready[0].Job.ID != highJobs[0].ID {
		t.Fatalf("only the lowest-priority-value assignment may dispatch")
	}

	env.claim(t, highJobs[0].ID)
	if a := env.assignment(t, high.ID); a.Status != store.AssignmentStatusActive {
		t.Fatalf("claiming must activate the assignment, got %s", a.Status)
	}

	// the other sequential assignment cannot start while one is active
	if _, err := env.Engine.ClaimJob(env.Ctx, lowJobs[0].ID); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("claim on second sequential assignment: %v, want conflict", err)
	}

	env.complete(t, highJobs[0].ID, "done")

	// the active assignment keeps its slot until explicitly closed
	if got := env.ready(t); len(got) != 0 {
		t.Fatalf("exhausted active assignment still holds the sequential slot, got %d", len(got))
	}
	if _, err := env.Engine.CompleteAssignment(env.Ctx, high.ID); err != nil {
		t.Fatalf("complete assignment: %v", err)
	}

	ready = env.ready(t)
	if len(ready) != 1 || ready[0].Job.ID != lowJobs[0].ID {
		t.Fatalf("lower-priority assignment must surface once the slot frees up")
	}
}

func TestIndependentAssignmentsBypassSequencing(t *testing.T) {
	env := newTestEnv(t)
	seq := env.createAssignment(t, "sequential work", 1, false)
	ind := env.createAssignment(t, "side quest", 9, true)
	_, seqJobs := env.enqueue(t, seq.ID, spec(store.JobTypeUAT, store.HarnessClaude))
	_, indJobs := env.enqueue(t, ind.ID, spec(store.JobTypeUAT, store.HarnessCodex))

	ready := env.ready(t)
	if len(ready) != 2 {
		t.Fatalf("independent assignment must dispatch alongside the sequential one, got %d", len(ready))
	}

	env.claim(t, seqJobs[0].ID)
	env.claim(t, indJobs[0].ID)
	if a := env.assignment(t, seq.ID); a.Status != store.AssignmentStatusActive {
		t.Fatalf("sequential assignment: %s", a.Status)
	}
	if a := env.assignment(t, ind.ID); a.Status != store.AssignmentStatusActive {
		t.Fatalf("independent assignment: %s", a.Status)
	}
}

func TestBlockedAssignmentStopsDispatchAndClaims(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "pausable", 0, false)
	_, jobs := env.enqueue(t, a.ID, spec(store.JobTypeUAT, store.HarnessClaude))

	if got := env.ready(t); len(got) != 1 {
		t.Fatalf("precondition: got %d ready", len(got))
	}
	if _, err := env.Engine.BlockAssignment(env.Ctx, a.ID, "waiting on credentials"); err != nil {
		t.Fatalf("block: %v", err)
	}
	if got := env.ready(t); len(got) != 0 {
		t.Fatalf("blocked assignment must not dispatch, got %d", len(got))
	}
	if _, err := env.Engine.ClaimJob(env.Ctx, jobs[0].ID); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("claim on blocked assignment: %v, want conflict", err)
	}

	if _, err := env.Engine.UnblockAssignment(env.Ctx, a.ID); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if got := env.ready(t); len(got) != 1 {
		t.Fatalf("unblocked assignment must dispatch again, got %d", len(got))
	}
	env.claim(t, jobs[0].ID)
}

func TestPartiallyFinishedBatchIsNotRedispatched(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAssignment(t, "crash recovery", 0, false)
	_, jobs := env.enqueue(t, a.ID,
		spec(store.JobTypeImplement, store.HarnessClaude),
		spec(store.JobTypeImplement, store.HarnessCodex),
	)

	// one job ran and finished while its sibling was never claimed
	env.claim(t, jobs[0].ID)
	env.complete(t, jobs[0].ID, "half done")

	if got := env.ready(t); len(got) != 0 {
		t.Fatalf("a partially finished batch needs an operator, not a second wave; got %d", len(got))
	}
}

func TestEmptyOrBrokenChainsYieldNoWork(t *testing.T) {
	env := newTestEnv(t)

	// no groups at all
	bare := env.createAssignment(t, "no chain yet", 0, true)
	if got := env.ready(t); len(got) != 0 {
		t.Fatalf("chainless assignment dispatched %d jobs", len(got))
	}

	// dangling head pointer
	broken := env.createAssignment(t, "broken head", 0, true)
	env.enqueue(t, broken.ID, spec(store.JobTypeUAT, store.HarnessClaude))
	if err := env.Store.SetAssignmentHead(env.Ctx, nil, broken.ID, uuid.New(), env.Engine.Now()); err != nil {
		t.Fatalf("corrupt head: %v", err)
	}
	got, err := env.Engine.ReadyJobs(env.Ctx, env.NS.ID)
	if err != nil {
		t.Fatalf("a dangling head must not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("dangling head dispatched %d jobs", len(got))
	}
	_ = bare
}

func TestSequentialTieBreaksByCreationTime(t *testing.T) {
	env := newTestEnv(t)
	first := env.createAssignment(t, "first in", 3, false)
	env.advance(time.Minute)
	second := env.createAssignment(t, "second in", 3, false)
	_, firstJobs := env.enqueue(t, first.ID, spec(store.JobTypeUAT, store.HarnessClaude))
	env.enqueue(t, second.ID, spec(store.JobTypeUAT, store.HarnessCodex))

	ready := env.ready(t)
	if len(ready) != 1 || ready[0].Job.ID != firstJobs[0].ID {
		t.Fatalf("equal priorities must dispatch the earliest-created assignment")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
