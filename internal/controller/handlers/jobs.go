package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"baton/internal/controller/middleware"
	"baton/internal/engine"
	"baton/pkg/api"
)

func toReadyJobsResponse(ready []engine.ReadyJob) api.ReadyJobsResponse {
	resp := api.ReadyJobsResponse{Jobs: make([]api.ReadyJobResponse, 0, len(ready))}
	for i := range ready {
		rj := &ready[i]
		item := api.ReadyJobResponse{
			Job:       toJobResponse(&rj.Job),
			NorthStar: rj.Assignment.NorthStar,
			Decisions: rj.Assignment.Decisions,
		}
		for _, p := range rj.Prior {
			item.Prior = append(item.Prior, api.PriorResult{
				JobType:    string(p.JobType),
				Harness:    string(p.Harness),
				Result:     p.Result,
				GroupIndex: p.GroupIndex,
			})
		}
		resp.Jobs = append(resp.Jobs, item)
	}
	return resp
}

// ReadyJobs handles GET /jobs/ready: every job dispatchable right now for
// the authenticated namespace. Read-only; polling it without claiming
// returns the same set.
func (h *Handlers) ReadyJobs(w http.ResponseWriter, r *http.Request) {
	nsID, ok := middleware.NamespaceIDFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ready, err := h.eng.ReadyJobs(r.Context(), nsID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toReadyJobsResponse(ready))
}

// InternalReadyJobs handles GET /internal/jobs/ready?namespace={id}. Same
// feed as ReadyJobs, but for runners, which authenticate with the shared
// token and name the namespace they serve explicitly.
func (h *Handlers) InternalReadyJobs(w http.ResponseWriter, r *http.Request) {
	nsID, err := uuid.Parse(r.URL.Query().Get("namespace"))
	if err != nil {
		h.httpError(w, "Invalid namespace", http.StatusBadRequest)
		return
	}

	ready, err := h.eng.ReadyJobs(r.Context(), nsID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toReadyJobsResponse(ready))
}

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	nsID, ok := middleware.NamespaceIDFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := pathUUID(r)
	if err != nil {
		h.httpError(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	j, err := h.eng.GetJob(r.Context(), id)
	if err != nil {
		h.engineError(w, err)
		return
	}
	if j.NamespaceID != nsID {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(j))
}

// ClaimJob handles POST /internal/jobs/{id}/claim. A 409 means another
// runner won the race or the assignment cannot start; the caller just moves
// on to the next ready job.
func (h *Handlers) ClaimJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		h.httpError(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	j, err := h.eng.ClaimJob(r.Context(), id)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(j))
}

// CompleteJob handles POST /internal/jobs/{id}/complete.
func (h *Handlers) CompleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		h.httpError(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	var req api.CompleteJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	j, err := h.eng.CompleteJob(r.Context(), id, req.Result)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(j))
}

// FailJob handles POST /internal/jobs/{id}/fail.
func (h *Handlers) FailJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		h.httpError(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	var req api.FailJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	j, err := h.eng.FailJob(r.Context(), id, req.Error)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(j))
}

// UpdateJobMetrics handles PATCH /internal/jobs/{id}/metrics. Absent fields
// are left untouched; terminal jobs reject the patch.
func (h *Handlers) UpdateJobMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		h.httpError(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	var req api.UpdateJobMetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	j, err := h.eng.UpdateJobMetrics(r.Context(), id, engine.MetricsPatch{
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
		OutputBytes:  req.OutputBytes,
		Progress:     req.Progress,
	})
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(j))
}

// Reap handles POST /internal/reap: fail every running job older than the
// configured max runtime. Also runs on a timer in the controller main; the
// endpoint exists for operators who do not want to wait for it.
func (h *Handlers) Reap(w http.ResponseWriter, r *http.Request) {
	reaped, err := h.eng.ReapStaleJobs(r.Context(), h.jobMaxRuntime)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.ReapResponse{Reaped: reaped})
}
