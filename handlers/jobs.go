package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"watchlog/models"
	"watchlog/services"

	"github.com/go-chi/chi/v5"
)

// JobsHandler exposes the orchestrator and the job queue over JSON. It is
// the only HTTP surface of the core; pages, sessions and statistics live in
// the web layer.
type JobsHandler struct {
	orchestrator *services.Orchestrator
	jobs         *services.JobStore
}

func NewJobsHandler(orchestrator *services.Orchestrator, jobs *services.JobStore) *JobsHandler {
	return &JobsHandler{orchestrator: orchestrator, jobs: jobs}
}

func (h *JobsHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/jobs", h.ListJobs)
	r.Post("/api/jobs/metadata-refresh", h.EnqueueMetadataRefresh)
	r.Post("/api/jobs/poster-cache-refresh", h.EnqueuePosterCacheRefresh)
	r.Post("/api/users/{userID}/sync", h.EnqueueSyncAll)
	r.Post("/api/users/{userID}/sync/{jobType}", h.EnqueueSync)
}

func (h *JobsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	jobs, err := h.jobs.List(limit)
	if err != nil {
		slog.Error("Failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *JobsHandler) EnqueueMetadataRefresh(w http.ResponseWriter, r *http.Request) {
	job, err := h.orchestrator.EnqueueMetadataRefresh()
	if err != nil {
		slog.Error("Failed to enqueue metadata refresh", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *JobsHandler) EnqueuePosterCacheRefresh(w http.ResponseWriter, r *http.Request) {
	job, err := h.orchestrator.EnqueuePosterCacheRefresh()
	if err != nil {
		slog.Error("Failed to enqueue poster cache refresh", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *JobsHandler) EnqueueSyncAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	jobs, err := h.orchestrator.EnqueueSyncAll(userID)
	if err != nil {
		slog.Error("Failed to enqueue sync", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue jobs")
		return
	}
	writeJSON(w, http.StatusAccepted, jobs)
}

func (h *JobsHandler) EnqueueSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	jobType := models.JobType(chi.URLParam(r, "jobType"))

	var params models.JobParams
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid parameters")
			return
		}
	}

	job, err := h.orchestrator.EnqueueSync(userID, jobType, params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
