package handlers

import (
	"encoding/json"
	"net/http"

	"baton/internal/auth"
	"baton/internal/controller/middleware"
	"baton/pkg/api"
)

// CreateNamespace handles POST /namespaces. It generates a fresh API key,
// stores only its hash, and returns the raw key ONCE. This is the bootstrap
// route; it runs without namespace auth.
func (h *Handlers) CreateNamespace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateNamespaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	apiKey, err := auth.GenerateKey()
	if err != nil {
		h.httpError(w, "Entropy failure", http.StatusInternalServerError)
		return
	}

	ns, err := h.eng.CreateNamespace(ctx, req.Name, req.Description, auth.HashKey(apiKey))
	if err != nil {
		h.engineError(w, err)
		return
	}

	// The raw key leaves the controller exactly here and is never
	// recoverable afterwards.
	h.respondJson(w, http.StatusCreated, api.CreateNamespaceResponse{
		ID:     ns.ID.String(),
		Name:   ns.Name,
		ApiKey: apiKey,
	})
}

// GetNamespace handles GET /namespaces/{name}. A key only ever sees its own
// namespace; asking for another name answers 404 rather than admitting the
// name exists.
func (h *Handlers) GetNamespace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ns, ok := middleware.NamespaceFromContext(ctx)
	if !ok || ns.Name != r.PathValue("name") {
		h.httpError(w, "Namespace not found", http.StatusNotFound)
		return
	}

	counters, err := h.eng.NamespaceCounters(ctx, ns.ID)
	if err != nil {
		h.engineError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.NamespaceResponse{
		ID:          ns.ID.String(),
		Name:        ns.Name,
		Description: ns.Description,
		CreatedAt:   ns.CreatedAt,
		Counters: api.CountersResponse{
			JobsPending:  counters.JobsPending,
			JobsRunning:  counters.JobsRunning,
			JobsComplete: counters.JobsComplete,
			JobsFailed:   counters.JobsFailed,
		},
	})
}

// DeleteNamespace handles DELETE /namespaces/{name}. Only an empty
// namespace may go; one with assignments answers 409.
func (h *Handlers) DeleteNamespace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ns, ok := middleware.NamespaceFromContext(ctx)
	if !ok || ns.Name != r.PathValue("name") {
		h.httpError(w, "Namespace not found", http.StatusNotFound)
		return
	}

	if err := h.eng.DeleteNamespace(ctx, ns.ID); err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusNoContent, nil)
}
