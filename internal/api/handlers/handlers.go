package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/txn-recurrence/internal/api/middleware"
	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/feed"
	"github.com/dvloznov/txn-recurrence/internal/jobs"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps request bodies; a single record or user is far smaller.
const maxBodyBytes = 1 << 20

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, feed.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Client errors carry
// the error text; server errors are logged and answered with msg.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, status, msg)
		return
	}
	log.Debug().Err(err).Int("status", status).Msg(msg)
	middleware.WriteError(w, status, err.Error())
}

// requestLogger returns the request-scoped logger set by middleware.Logger,
// or fallback for requests served outside the router.
func requestLogger(r *http.Request, fallback zerolog.Logger) zerolog.Logger {
	return logger.FromContextOr(r.Context(), fallback)
}

// pathID parses the {name} path segment as a positive id.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ImportsHandler enqueues feed imports.
type ImportsHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(publisher jobs.Publisher, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{
		publisher: publisher,
		log:       log,
	}
}

// EnqueueImport handles POST /api/imports
func (h *ImportsHandler) EnqueueImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    int64  `json:"user_id"`
		SourceURI string `json:"source_uri"`
	}

	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.UserID <= 0 || req.SourceURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id and source_uri are required")
		return
	}

	job := &jobs.ImportFeedJob{
		UserID:    req.UserID,
		SourceURI: req.SourceURI,
	}

	if err := h.publisher.PublishImportFeed(r.Context(), job); err != nil {
		reqLog := requestLogger(r, h.log)
		reqLog.Error().Err(err).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
		return
	}

	reqLog := requestLogger(r, h.log)
	reqLog.Info().Str("job_id", job.JobID).Int64("user_id", req.UserID).Str("source", req.SourceURI).Msg("Import job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.JobID,
		"user_id": job.UserID,
		"status":  string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log).With().Str("job_id", jobID).Logger(), err, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if userStr := query.Get("user_id"); userStr != "" {
		userID, err := strconv.ParseInt(userStr, 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid user_id")
			return
		}
		filter.UserID = userID
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
		reqLog := requestLogger(r, h.log)
		reqLog.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	if jobsList == nil {
		jobsList = []*jobs.ImportFeedJob{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
