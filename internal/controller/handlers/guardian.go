package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"baton/internal/controller/middleware"
	"baton/internal/store"
	"baton/pkg/api"
)

// CreateThread handles POST /threads. A guardian-mode thread linked to an
// assignment arms alignment evaluation for it.
func (h *Handlers) CreateThread(w http.ResponseWriter, r *http.Request) {
	nsID, ok := middleware.NamespaceIDFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	var assignmentID *uuid.UUID
	if req.AssignmentID != nil {
		id, err := uuid.Parse(*req.AssignmentID)
		if err != nil {
			h.httpError(w, "Invalid assignment_id", http.StatusBadRequest)
			return
		}
		assignmentID = &id
	}

	t, err := h.eng.CreateThread(r.Context(), nsID, assignmentID, store.ThreadMode(req.Mode), req.Title)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusCreated, toThreadResponse(t))
}

// SetThreadMode handles POST /threads/{id}/mode. Switching an
// assignment-linked thread into guardian mode is what starts alignment
// monitoring; switching away stops it.
func (h *Handlers) SetThreadMode(w http.ResponseWriter, r *http.Request) {
	nsID, ok := middleware.NamespaceIDFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := pathUUID(r)
	if err != nil {
		h.httpError(w, "Invalid thread ID", http.StatusBadRequest)
		return
	}

	var req api.SetThreadModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// Ownership first: a foreign thread must 404 before anything mutates.
	t, err := h.eng.GetThread(r.Context(), id)
	if err != nil {
		h.engineError(w, err)
		return
	}
	if t.NamespaceID != nsID {
		h.httpError(w, "Thread not found", http.StatusNotFound)
		return
	}

	t, err = h.eng.SetThreadMode(r.Context(), id, store.ThreadMode(req.Mode))
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toThreadResponse(t))
}

// PendingEvaluations handles GET /guardian/pending: the terminal reporting
// groups of guardian-monitored assignments that have not been judged yet.
// Each group appears until exactly one verdict lands for it.
func (h *Handlers) PendingEvaluations(w http.ResponseWriter, r *http.Request) {
	nsID, ok := middleware.NamespaceIDFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	pending, err := h.eng.PendingEvaluations(r.Context(), nsID)
	if err != nil {
		h.engineError(w, err)
		return
	}

	resp := api.PendingEvaluationsResponse{
		Evaluations: make([]api.PendingEvaluationResponse, 0, len(pending)),
	}
	for i := range pending {
		p := &pending[i]
		resp.Evaluations = append(resp.Evaluations, api.PendingEvaluationResponse{
			GroupID:      p.Group.ID.String(),
			AssignmentID: p.Assignment.ID.String(),
			NorthStar:    p.Assignment.NorthStar,
			Report:       p.Report,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}
