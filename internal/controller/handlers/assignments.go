package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"baton/internal/controller/middleware"
	"baton/internal/engine"
	"baton/internal/store"
	"baton/pkg/api"
)

// CreateAssignment handles POST /assignments.
func (h *Handlers) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nsID, ok := middleware.NamespaceIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.CreateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Priority < api.PriorityMin || req.Priority > api.PriorityMax {
		h.httpError(w, fmt.Sprintf("Priority must be between %d and %d", api.PriorityMin, api.PriorityMax), http.StatusBadRequest)
		return
	}

	a, err := h.eng.CreateAssignment(ctx, nsID, req.NorthStar, req.Priority, req.Independent)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusCreated, toAssignmentResponse(a))
}

// ListAssignments handles GET /assignments. The optional status query
// parameter takes a comma-separated status list.
func (h *Handlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nsID, ok := middleware.NamespaceIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var statuses []store.AssignmentStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, store.AssignmentStatus(strings.TrimSpace(s)))
		}
	}

	assignments, err := h.eng.ListAssignments(ctx, nsID, statuses)
	if err != nil {
		h.engineError(w, err)
		return
	}

	resp := make([]api.AssignmentResponse, 0, len(assignments))
	for i := range assignments {
		resp = append(resp, toAssignmentResponse(&assignments[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// assignmentForRequest resolves {id}, fetches the assignment view, and
// enforces namespace ownership. Foreign assignments read as 404, never 403.
func (h *Handlers) assignmentForRequest(w http.ResponseWriter, r *http.Request) (*engine.AssignmentView, bool) {
	nsID, ok := middleware.NamespaceIDFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	id, err := pathUUID(r)
	if err != nil {
		h.httpError(w, "Invalid assignment ID", http.StatusBadRequest)
		return nil, false
	}
	view, err := h.eng.GetAssignment(r.Context(), id)
	if err != nil {
		h.engineError(w, err)
		return nil, false
	}
	if view.Assignment.NamespaceID != nsID {
		h.httpError(w, "Assignment not found", http.StatusNotFound)
		return nil, false
	}
	return view, true
}

// GetAssignment handles GET /assignments/{id}.
func (h *Handlers) GetAssignment(w http.ResponseWriter, r *http.Request) {
	view, ok := h.assignmentForRequest(w, r)
	if !ok {
		return
	}
	h.respondJson(w, http.StatusOK, toAssignmentResponse(&view.Assignment))
}

// GetChain handles GET /assignments/{id}/chain: the assignment plus every
// group in link order, jobs included.
func (h *Handlers) GetChain(w http.ResponseWriter, r *http.Request) {
	view, ok := h.assignmentForRequest(w, r)
	if !ok {
		return
	}

	resp := api.ChainResponse{
		Assignment: toAssignmentResponse(&view.Assignment),
		Groups:     make([]api.GroupResponse, 0, len(view.Groups)),
	}
	for i := range view.Groups {
		resp.Groups = append(resp.Groups, toGroupResponse(&view.Groups[i].Group, view.Groups[i].Jobs))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// BlockAssignment handles POST /assignments/{id}/block.
func (h *Handlers) BlockAssignment(w http.ResponseWriter, r *http.Request) {
	view, ok := h.assignmentForRequest(w, r)
	if !ok {
		return
	}

	var req api.BlockAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	a, err := h.eng.BlockAssignment(r.Context(), view.Assignment.ID, req.Reason)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toAssignmentResponse(a))
}

// UnblockAssignment handles POST /assignments/{id}/unblock.
func (h *Handlers) UnblockAssignment(w http.ResponseWriter, r *http.Request) {
	view, ok := h.assignmentForRequest(w, r)
	if !ok {
		return
	}

	a, err := h.eng.UnblockAssignment(r.Context(), view.Assignment.ID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toAssignmentResponse(a))
}

// CompleteAssignment handles POST /assignments/{id}/complete.
func (h *Handlers) CompleteAssignment(w http.ResponseWriter, r *http.Request) {
	view, ok := h.assignmentForRequest(w, r)
	if !ok {
		return
	}

	a, err := h.eng.CompleteAssignment(r.Context(), view.Assignment.ID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toAssignmentResponse(a))
}

// RecordDecision handles POST /assignments/{id}/decisions.
func (h *Handlers) RecordDecision(w http.ResponseWriter, r *http.Request) {
	view, ok := h.assignmentForRequest(w, r)
	if !ok {
		return
	}

	var req api.RecordDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	a, err := h.eng.RecordDecision(r.Context(), view.Assignment.ID, req.Decision)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toAssignmentResponse(a))
}

// EnqueueGroup handles POST /assignments/{id}/groups: a batch of job specs
// becomes one group on the assignment's chain, expanded by the controller's
// policy before insert.
func (h *Handlers) EnqueueGroup(w http.ResponseWriter, r *http.Request) {
	view, ok := h.assignmentForRequest(w, r)
	if !ok {
		return
	}

	var req api.EnqueueGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	var afterID *uuid.UUID
	if req.AfterGroupID != nil {
		id, err := uuid.Parse(*req.AfterGroupID)
		if err != nil {
			h.httpError(w, "Invalid after_group_id", http.StatusBadRequest)
			return
		}
		afterID = &id
	}

	specs := make([]engine.JobSpec, 0, len(req.Jobs))
	for _, js := range req.Jobs {
		specs = append(specs, engine.JobSpec{
			Type:    store.JobType(js.Type),
			Harness: store.Harness(js.Harness),
			Context: js.Context,
			Prompt:  js.Prompt,
		})
	}

	g, jobs, err := h.eng.InsertJobBatch(r.Context(), view.Assignment.ID, afterID, specs)
	if err != nil {
		h.engineError(w, err)
		return
	}

	resp := api.EnqueueGroupResponse{GroupID: g.ID.String()}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(&jobs[i]))
	}
	h.respondJson(w, http.StatusCreated, resp)
}

// ListEvaluations handles GET /assignments/{id}/evaluations.
func (h *Handlers) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	view, ok := h.assignmentForRequest(w, r)
	if !ok {
		return
	}

	evals, err := h.eng.ListEvaluations(r.Context(), view.Assignment.ID)
	if err != nil {
		h.engineError(w, err)
		return
	}

	resp := make([]api.EvaluationResponse, 0, len(evals))
	for i := range evals {
		resp = append(resp, toEvaluationResponse(&evals[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ApplyAlignment handles POST /assignments/{id}/alignment: the guardian
// collaborator reports its verdict for one terminal reporting group.
func (h *Handlers) ApplyAlignment(w http.ResponseWriter, r *http.Request) {
	view, ok := h.assignmentForRequest(w, r)
	if !ok {
		return
	}

	var req api.ApplyAlignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	groupID, err := uuid.Parse(req.GroupID)
	if err != nil {
		h.httpError(w, "Invalid group_id", http.StatusBadRequest)
		return
	}
	verdict := store.Alignment(req.Verdict)
	if !verdict.Valid() {
		h.httpError(w, fmt.Sprintf("Invalid verdict %q", req.Verdict), http.StatusBadRequest)
		return
	}

	ev, err := h.eng.ApplyAlignment(r.Context(), view.Assignment.ID, groupID, verdict, req.Rationale)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusCreated, toEvaluationResponse(ev))
}
