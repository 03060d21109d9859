package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dvloznov/just-save/internal/api/middleware"
	"github.com/dvloznov/just-save/internal/jobs"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/pdftext"
	"github.com/dvloznov/just-save/internal/pipeline"
)

// JobsHandler handles asynchronous analysis jobs.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	pdf       pdftext.Extractor
	limits    pipeline.Limits
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore, pdf pdftext.Extractor, limits pipeline.Limits) *JobsHandler {
	return &JobsHandler{
		publisher: publisher,
		store:     store,
		pdf:       pdf,
		limits:    limits,
	}
}

// CreateJob handles POST /api/jobs
func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	up, err := readUpload(w, r, h.limits, "")
	if err != nil {
		writeFailure(w, r, "create_job", "", err)
		return
	}

	text, err := statementText(ctx, h.pdf, up)
	if err != nil {
		writeFailure(w, r, "create_job", up.kind, err)
		return
	}

	job := &jobs.AnalysisJob{
		Kind:  up.kind,
		Input: pipeline.Input{Content: text, DeclaredSize: up.size, Kind: up.kind},
	}
	if err := h.publisher.Publish(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to enqueue analysis job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to start analysis. Please try again.")
		return
	}

	log := logger.FromContext(ctx)
	log.Info().Str("job_id", job.JobID).Str("kind", string(up.kind)).Msg("Analysis job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(jobs.JobStatusPending),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := mux.Vars(r)["id"]

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, jobs.ErrJobNotFound) {
			log := logger.FromContext(ctx)
			log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		}
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs. Results are omitted; fetch a job by ID
// to read its analysis.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
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

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	for _, j := range jobsList {
		j.Result = nil
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
