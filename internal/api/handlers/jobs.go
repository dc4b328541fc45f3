package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/jobs"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher) *JobsHandler {
	return &JobsHandler{store: store, publisher: publisher}
}

// Enqueue handles POST /api/jobs
func (h *JobsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type   jobs.JobType `json:"type"`
		Params jobs.Params  `json:"params"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !req.Type.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "Unknown job type")
		return
	}

	job := &jobs.Job{Type: req.Type, Params: req.Params}
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		writeFailure(w, r, err, "Failed to enqueue job")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"type":   string(job.Type),
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err, "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Type:   jobs.JobType(query.Get("type")),
		Status: jobs.JobStatus(query.Get("status")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeFailure(w, r, err, "Failed to list jobs")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
