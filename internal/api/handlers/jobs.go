package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/momo-tracker/internal/api/middleware"
	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	publisher   jobs.Publisher
	store       jobs.JobStore
	defaultMode domain.ImportMode
	log         zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore, defaultMode domain.ImportMode, log zerolog.Logger) *JobsHandler {
	if defaultMode == "" {
		defaultMode = domain.ImportModeReplace
	}
	return &JobsHandler{
		publisher:   publisher,
		store:       store,
		defaultMode: defaultMode,
		log:         log,
	}
}

// EnqueueImport handles POST /api/imports
func (h *JobsHandler) EnqueueImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceURI string `json:"source_uri"`
		Mode      string `json:"mode"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SourceURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "source_uri is required")
		return
	}

	mode := h.defaultMode
	if req.Mode != "" {
		mode = domain.ImportMode(req.Mode)
	}
	if !mode.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "mode must be replace or append")
		return
	}

	job := &jobs.ImportJob{
		SourceURI: req.SourceURI,
		Mode:      string(mode),
	}

	if err := h.publisher.PublishImport(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
		return
	}

	reqLog := middleware.RequestLogger(r, h.log)
	reqLog.Info().Str("job_id", job.JobID).Str("source_uri", job.SourceURI).Msg("Import job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"source_uri": job.SourceURI,
		"mode":       job.Mode,
		"status":     string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		SourceURI: query.Get("source_uri"),
		Status:    jobs.JobStatus(query.Get("status")),
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
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
