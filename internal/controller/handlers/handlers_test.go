package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"

	"baton/internal/controller/middleware"
	"baton/internal/engine"
	"baton/internal/store"
)

// mockPinger fakes store reachability for the readiness probe.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.pingErr }

// mockEngine implements Orchestrator. Each method answers with its resp/err
// pair and records the arguments it was called with.
type mockEngine struct {
	createNamespaceResp *store.Namespace
	createNamespaceErr  error
	createdName         string
	createdKeyHash      string

	countersResp *store.NamespaceCounters
	countersErr  error

	deleteNamespaceErr error
	deletedNamespaceID uuid.UUID

	createAssignmentResp *store.Assignment
	createAssignmentErr  error
	createdNorthStar     string
	createdPriority      int
	createdIndependent   bool

	getAssignmentResp *engine.AssignmentView
	getAssignmentErr  error

	listAssignmentsResp []store.Assignment
	listAssignmentsErr  error
	listedStatuses      []store.AssignmentStatus

	insertBatchGroup *store.JobGroup
	insertBatchJobs  []store.Job
	insertBatchErr   error
	insertedSpecs    []engine.JobSpec
	insertedAfter    *uuid.UUID

	blockResp     *store.Assignment
	blockErr      error
	blockedReason string

	unblockResp *store.Assignment
	unblockErr  error

	completeAssignmentResp *store.Assignment
	completeAssignmentErr  error

	recordDecisionResp *store.Assignment
	recordDecisionErr  error
	recordedDecision   string

	readyJobsResp []engine.ReadyJob
	readyJobsErr  error
	readyNsID     uuid.UUID

	getJobResp *store.Job
	getJobErr  error

	claimJobResp *store.Job
	claimJobErr  error
	claimedID    uuid.UUID

	completeJobResp *store.Job
	completeJobErr  error
	completedResult string

	failJobResp *store.Job
	failJobErr  error
	failedMsg   *string

	updateMetricsResp  *store.Job
	updateMetricsErr   error
	updatedMetricsWith engine.MetricsPatch

	reapCount int
	reapErr   error
	reapedFor time.Duration

	createThreadResp *store.ChatThread
	createThreadErr  error

	getThreadResp *store.ChatThread
	getThreadErr  error

	setThreadModeResp *store.ChatThread
	setThreadModeErr  error
	setModeTo         store.ThreadMode

	pendingResp []engine.PendingEvaluation
	pendingErr  error

	applyAlignmentResp *store.GuardianEvaluation
	applyAlignmentErr  error
	appliedVerdict     store.Alignment
	appliedGroupID     uuid.UUID

	listEvaluationsResp []store.GuardianEvaluation
	listEvaluationsErr  error
}

func (m *mockEngine) CreateNamespace(ctx context.Context, name, description, keyHash string) (*store.Namespace, error) {
	m.createdName = name
	m.createdKeyHash = keyHash
	return m.createNamespaceResp, m.createNamespaceErr
}

func (m *mockEngine) NamespaceCounters(ctx context.Context, id uuid.UUID) (*store.NamespaceCounters, error) {
	return m.countersResp, m.countersErr
}

func (m *mockEngine) DeleteNamespace(ctx context.Context, id uuid.UUID) error {
	m.deletedNamespaceID = id
	return m.deleteNamespaceErr
}

func (m *mockEngine) CreateAssignment(ctx context.Context, namespaceID uuid.UUID, northStar string, priority int, independent bool) (*store.Assignment, error) {
	m.createdNorthStar = northStar
	m.createdPriority = priority
	m.createdIndependent = independent
	return m.createAssignmentResp, m.createAssignmentErr
}

func (m *mockEngine) GetAssignment(ctx context.Context, id uuid.UUID) (*engine.AssignmentView, error) {
	return m.getAssignmentResp, m.getAssignmentErr
}

func (m *mockEngine) ListAssignments(ctx context.Context, namespaceID uuid.UUID, statuses []store.AssignmentStatus) ([]store.Assignment, error) {
	m.listedStatuses = statuses
	return m.listAssignmentsResp, m.listAssignmentsErr
}

func (m *mockEngine) InsertJobBatch(ctx context.Context, assignmentID uuid.UUID, afterGroupID *uuid.UUID, specs []engine.JobSpec) (*store.JobGroup, []store.Job, error) {
	m.insertedSpecs = specs
	m.insertedAfter = afterGroupID
	return m.insertBatchGroup, m.insertBatchJobs, m.insertBatchErr
}

func (m *mockEngine) BlockAssignment(ctx context.Context, id uuid.UUID, reason string) (*store.Assignment, error) {
	m.blockedReason = reason
	return m.blockResp, m.blockErr
}

func (m *mockEngine) UnblockAssignment(ctx context.Context, id uuid.UUID) (*store.Assignment, error) {
	return m.unblockResp, m.unblockErr
}

func (m *mockEngine) CompleteAssignment(ctx context.Context, id uuid.UUID) (*store.Assignment, error) {
	return m.completeAssignmentResp, m.completeAssignmentErr
}

func (m *mockEngine) RecordDecision(ctx context.Context, id uuid.UUID, text string) (*store.Assignment, error) {
	m.recordedDecision = text
	return m.recordDecisionResp, m.recordDecisionErr
}

func (m *mockEngine) ReadyJobs(ctx context.Context, namespaceID uuid.UUID) ([]engine.ReadyJob, error) {
	m.readyNsID = namespaceID
	return m.readyJobsResp, m.readyJobsErr
}

func (m *mockEngine) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return m.getJobResp, m.getJobErr
}

func (m *mockEngine) ClaimJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	m.claimedID = id
	return m.claimJobResp, m.claimJobErr
}

func (m *mockEngine) CompleteJob(ctx context.Context, id uuid.UUID, result string) (*store.Job, error) {
	m.completedResult = result
	return m.completeJobResp, m.completeJobErr
}

func (m *mockEngine) FailJob(ctx context.Context, id uuid.UUID, errMsg *string) (*store.Job, error) {
	m.failedMsg = errMsg
	return m.failJobResp, m.failJobErr
}

func (m *mockEngine) UpdateJobMetrics(ctx context.Context, id uuid.UUID, patch engine.MetricsPatch) (*store.Job, error) {
	m.updatedMetricsWith = patch
	return m.updateMetricsResp, m.updateMetricsErr
}

func (m *mockEngine) ReapStaleJobs(ctx context.Context, maxRuntime time.Duration) (int, error) {
	m.reapedFor = maxRuntime
	return m.reapCount, m.reapErr
}

func (m *mockEngine) CreateThread(ctx context.Context, namespaceID uuid.UUID, assignmentID *uuid.UUID, mode store.ThreadMode, title string) (*store.ChatThread, error) {
	return m.createThreadResp, m.createThreadErr
}

func (m *mockEngine) GetThread(ctx context.Context, id uuid.UUID) (*store.ChatThread, error) {
	return m.getThreadResp, m.getThreadErr
}

func (m *mockEngine) SetThreadMode(ctx context.Context, id uuid.UUID, mode store.ThreadMode) (*store.ChatThread, error) {
	m.setModeTo = mode
	return m.setThreadModeResp, m.setThreadModeErr
}

func (m *mockEngine) PendingEvaluations(ctx context.Context, namespaceID uuid.UUID) ([]engine.PendingEvaluation, error) {
	return m.pendingResp, m.pendingErr
}

func (m *mockEngine) ApplyAlignment(ctx context.Context, assignmentID, groupID uuid.UUID, verdict store.Alignment, rationale string) (*store.GuardianEvaluation, error) {
	m.appliedVerdict = verdict
	m.appliedGroupID = groupID
	return m.applyAlignmentResp, m.applyAlignmentErr
}

func (m *mockEngine) ListEvaluations(ctx context.Context, assignmentID uuid.UUID) ([]store.GuardianEvaluation, error) {
	return m.listEvaluationsResp, m.listEvaluationsErr
}

// newTestHandlers wires a mock engine into Handlers with a healthy pinger.
func newTestHandlers(mock *mockEngine) *Handlers {
	return New(mock, &mockPinger{}, 30*time.Minute)
}

// withNamespace injects an authenticated namespace the way AuthMiddleware
// would.
func withNamespace(req *http.Request, ns *store.Namespace) *http.Request {
	return req.WithContext(middleware.NewContextWithNamespace(req.Context(), ns))
}

// serveWithPattern routes one request through a fresh mux so {id} and
// {name} path values resolve the same way they do in the real server.
func serveWithPattern(pattern string, handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, handler)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}
