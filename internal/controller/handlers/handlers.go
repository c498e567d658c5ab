// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"baton/internal/engine"
	"baton/internal/store"
	"baton/pkg/api"
)

// Orchestrator is the engine surface the HTTP layer drives. *engine.Engine
// satisfies it; handler tests substitute a mock.
type Orchestrator interface {
	CreateNamespace(ctx context.Context, name, description, keyHash string) (*store.Namespace, error)
	NamespaceCounters(ctx context.Context, id uuid.UUID) (*store.NamespaceCounters, error)
	DeleteNamespace(ctx context.Context, id uuid.UUID) error

	CreateAssignment(ctx context.Context, namespaceID uuid.UUID, northStar string, priority int, independent bool) (*store.Assignment, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (*engine.AssignmentView, error)
	ListAssignments(ctx context.Context, namespaceID uuid.UUID, statuses []store.AssignmentStatus) ([]store.Assignment, error)
	InsertJobBatch(ctx context.Context, assignmentID uuid.UUID, afterGroupID *uuid.UUID, specs []engine.JobSpec) (*store.JobGroup, []store.Job, error)
	BlockAssignment(ctx context.Context, id uuid.UUID, reason string) (*store.Assignment, error)
	UnblockAssignment(ctx context.Context, id uuid.UUID) (*store.Assignment, error)
	CompleteAssignment(ctx context.Context, id uuid.UUID) (*store.Assignment, error)
	RecordDecision(ctx context.Context, id uuid.UUID, text string) (*store.Assignment, error)

	ReadyJobs(ctx context.Context, namespaceID uuid.UUID) ([]engine.ReadyJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error)
	ClaimJob(ctx context.Context, id uuid.UUID) (*store.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID, result string) (*store.Job, error)
	FailJob(ctx context.Context, id uuid.UUID, errMsg *string) (*store.Job, error)
	UpdateJobMetrics(ctx context.Context, id uuid.UUID, patch engine.MetricsPatch) (*store.Job, error)
	ReapStaleJobs(ctx context.Context, maxRuntime time.Duration) (int, error)

	CreateThread(ctx context.Context, namespaceID uuid.UUID, assignmentID *uuid.UUID, mode store.ThreadMode, title string) (*store.ChatThread, error)
	GetThread(ctx context.Context, id uuid.UUID) (*store.ChatThread, error)
	SetThreadMode(ctx context.Context, id uuid.UUID, mode store.ThreadMode) (*store.ChatThread, error)
	PendingEvaluations(ctx context.Context, namespaceID uuid.UUID) ([]engine.PendingEvaluation, error)
	ApplyAlignment(ctx context.Context, assignmentID, groupID uuid.UUID, verdict store.Alignment, rationale string) (*store.GuardianEvaluation, error)
	ListEvaluations(ctx context.Context, assignmentID uuid.UUID) ([]store.GuardianEvaluation, error)
}

// Pinger reports whether the backing store is reachable; the readiness
// probe uses it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	eng Orchestrator
	db  Pinger
	// jobMaxRuntime is the stale threshold the reap endpoint applies.
	// Zero disables reaping.
	jobMaxRuntime time.Duration
}

// New creates a new Handlers instance with the given dependencies.
func New(eng Orchestrator, db Pinger, jobMaxRuntime time.Duration) *Handlers {
	return &Handlers{eng: eng, db: db, jobMaxRuntime: jobMaxRuntime}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// engineError maps the engine and store sentinels onto HTTP statuses. The
// sentinel messages name entities and states, so they go to the client
// verbatim; anything unrecognized stays a plain 500.
func (h *Handlers) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		h.httpError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		h.httpError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrConflict),
		errors.Is(err, store.ErrDuplicate):
		h.httpError(w, err.Error(), http.StatusConflict)
	default:
		h.httpError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// pathUUID parses the {id} path segment of the request.
func pathUUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toAssignmentResponse(a *store.Assignment) api.AssignmentResponse {
	resp := api.AssignmentResponse{
		ID:            a.ID.String(),
		NorthStar:     a.NorthStar,
		Status:        string(a.Status),
		BlockedReason: a.BlockedReason,
		Independent:   a.Independent,
		Priority:      a.Priority,
		Artifacts:     a.Artifacts,
		Decisions:     a.Decisions,
		HeadGroupID:   uuidPtrString(a.HeadGroupID),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.Alignment != nil {
		s := string(*a.Alignment)
		resp.Alignment = &s
	}
	return resp
}

func toJobResponse(j *store.Job) api.JobResponse {
	return api.JobResponse{
		ID:           j.ID.String(),
		GroupID:      j.GroupID.String(),
		AssignmentID: j.AssignmentID.String(),
		Seq:          j.Seq,
		Type:         string(j.Type),
		Harness:      string(j.Harness),
		Status:       string(j.Status),
		Context:      j.Context,
		Prompt:       j.Prompt,
		Result:       j.Result,
		Metrics: api.JobMetrics{
			InputTokens:  j.Metrics.InputTokens,
			OutputTokens: j.Metrics.OutputTokens,
			OutputBytes:  j.Metrics.OutputBytes,
			Progress:     j.Metrics.Progress,
		},
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
	}
}

func toGroupResponse(g *store.JobGroup, jobs []store.Job) api.GroupResponse {
	resp := api.GroupResponse{
		ID:               g.ID.String(),
		AssignmentID:     g.AssignmentID.String(),
		NextGroupID:      uuidPtrString(g.NextGroupID),
		Status:           string(g.Status),
		AggregatedResult: g.AggregatedResult,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
	}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(&jobs[i]))
	}
	return resp
}

func toThreadResponse(t *store.ChatThread) api.ThreadResponse {
	return api.ThreadResponse{
		ID:           t.ID.String(),
		AssignmentID: uuidPtrString(t.AssignmentID),
		Mode:         string(t.Mode),
		Title:        t.Title,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toEvaluationResponse(ev *store.GuardianEvaluation) api.EvaluationResponse {
	return api.EvaluationResponse{
		ID:           ev.ID.String(),
		AssignmentID: ev.AssignmentID.String(),
		GroupID:      ev.GroupID.String(),
		Status:       string(ev.Status),
		Rationale:    ev.Rationale,
		CreatedAt:    ev.CreatedAt,
	}
}
