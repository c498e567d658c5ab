package engine_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"baton/internal/engine"
	"baton/internal/store"
	"baton/internal/store/sqlite"
)

type testEnv struct {
	Engine *engine.Engine
	Store  *sqlite.Store
	Ctx    context.Context
	NS     *store.Namespace

	clock time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "baton.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	policy := engine.ExpansionPolicy{
		store.JobTypeReview: {store.HarnessClaude, store.HarnessCodex, store.HarnessGemini},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(st, policy, log)

	env := &testEnv{
		Engine: eng,
		Store:  st,
		Ctx:    context.Background(),
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	eng.Now = func() time.Time { return env.clock }

	ns, err := eng.CreateNamespace(env.Ctx, "acme", "test namespace", "test-key-hash")
	if err != nil {
		t.Fatalf("create namespace: %v", err)
	}
	env.NS = ns
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.clock = env.clock.Add(d)
}

func (env *testEnv) createAssignment(t *testing.T, northStar string, priority int, independent bool) *store.Assignment {
	t.Helper()
	a, err := env.Engine.CreateAssignment(env.Ctx, env.NS.ID, northStar, priority, independent)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	// distinct creation times keep ordering deterministic
	env.advance(time.Second)
	return a
}

func (env *testEnv) enqueue(t *testing.T, assignmentID uuid.UUID, specs ...engine.JobSpec) (*store.JobGroup, []store.Job) {
	t.Helper()
	g, jobs, err := env.Engine.InsertJobBatch(env.Ctx, assignmentID, nil, specs)
	if err != nil {
		t.Fatalf("insert job batch: %v", err)
	}
	env.advance(time.Second)
	return g, jobs
}

func (env *testEnv) claim(t *testing.T, id uuid.UUID) *store.Job {
	t.Helper()
	j, err := env.Engine.ClaimJob(env.Ctx, id)
	if err != nil {
		t.Fatalf("claim job %s: %v", id, err)
	}
	return j
}

func (env *testEnv) complete(t *testing.T, id uuid.UUID, result string) *store.Job {
	t.Helper()
	j, err := env.Engine.CompleteJob(env.Ctx, id, result)
	if err != nil {
		t.Fatalf("complete job %s: %v", id, err)
	}
	return j
}

func (env *testEnv) fail(t *testing.T, id uuid.UUID, msg string) *store.Job {
	t.Helper()
	j, err := env.Engine.FailJob(env.Ctx, id, &msg)
	if err != nil {
		t.Fatalf("fail job %s: %v", id, err)
	}
	return j
}

// run claims and immediately completes a job, standing in for an executor.
func (env *testEnv) run(t *testing.T, id uuid.UUID, result string) {
	t.Helper()
	env.claim(t, id)
	env.complete(t, id, result)
}

func (env *testEnv) ready(t *testing.T) []engine.ReadyJob {
	t.Helper()
	jobs, err := env.Engine.ReadyJobs(env.Ctx, env.NS.ID)
	if err != nil {
		t.Fatalf("ready jobs: %v", err)
	}
	return jobs
}

func (env *testEnv) group(t *testing.T, id uuid.UUID) *store.JobGroup {
	t.Helper()
	g, err := env.Store.GetGroupByID(env.Ctx, nil, id)
	if err != nil {
		t.Fatalf("get group %s: %v", id, err)
	}
	return g
}

func (env *testEnv) assignment(t *testing.T, id uuid.UUID) *store.Assignment {
	t.Helper()
	a, err := env.Store.GetAssignmentByID(env.Ctx, nil, id)
	if err != nil {
		t.Fatalf("get assignment %s: %v", id, err)
	}
	return a
}

func (env *testEnv) job(t *testing.T, id uuid.UUID) *store.Job {
	t.Helper()
	j, err := env.Store.GetJobByID(env.Ctx, nil, id)
	if err != nil {
		t.Fatalf("get job %s: %v", id, err)
	}
	return j
}

func spec(jt store.JobType, h store.Harness) engine.JobSpec {
	return engine.JobSpec{Type: jt, Harness: h}
}
