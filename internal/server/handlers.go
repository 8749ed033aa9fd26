package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/scene-assembler/internal/captions"
	"github.com/maauso/scene-assembler/internal/job"
	"github.com/maauso/scene-assembler/internal/renderlog"
)

// RenderService is the part of job.RenderService the handlers use.
type RenderService interface {
	Submit(ctx context.Context, req job.RenderRequest) (*job.Result, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context) ([]*job.Job, error)
	GetLog(ctx context.Context, generationID string) (*renderlog.RenderLog, error)
	Capacity() (active, limit int)
}

// Compile-time check that job.RenderService satisfies RenderService.
var _ RenderService = (*job.RenderService)(nil)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   RenderService
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service RenderService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Status handles GET /status requests.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	active, limit := h.service.Capacity()
	writeJSON(w, http.StatusOK, StatusResponse{
		Active:    active,
		Max:       limit,
		Available: max(limit-active, 0),
	})
}

// Render handles POST /render requests. The render runs synchronously and
// the response is written once the job reaches a terminal state.
func (h *Handlers) Render(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var dto RenderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(dto); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	// Renders can outlast any server-wide write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to clear write deadline", slog.String("error", err.Error()))
	}

	res, err := h.service.Submit(r.Context(), dto.ToRequest())
	if err != nil {
		h.writeRenderError(w, err, time.Since(start))
		return
	}

	writeJSON(w, http.StatusOK, RenderResponse{
		Status:                "success",
		Success:               true,
		GenerationID:          res.GenerationID,
		B2URL:                 res.VideoURL,
		Duration:              res.Duration,
		ProcessingTimeSeconds: res.ProcessingTime.Seconds(),
		FileSize:              res.FileSize,
	})
}

func (h *Handlers) writeRenderError(w http.ResponseWriter, err error, elapsed time.Duration) {
	var (
		verr    *job.ValidationError
		busy    *job.BusyError
		failure *job.Failure
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error(), "VALIDATION_ERROR")
	case errors.As(err, &busy):
		writeJSON(w, http.StatusServiceUnavailable, BusyResponse{
			Status:  "busy",
			Success: false,
			Error:   "server busy",
			Active:  busy.Active,
			Max:     busy.Max,
		})
	case errors.As(err, &failure):
		writeJSON(w, http.StatusInternalServerError, RenderErrorResponse{
			Status:                "error",
			Success:               false,
			GenerationID:          failure.GenerationID,
			Stage:                 string(failure.Stage),
			Error:                 failure.Err.Error(),
			ProcessingTimeSeconds: failure.ProcessingTime.Seconds(),
		})
	default:
		h.logger.Error("render failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, RenderErrorResponse{
			Status:                "error",
			Success:               false,
			Error:                 err.Error(),
			ProcessingTimeSeconds: elapsed.Seconds(),
		})
	}
}

// ListJobs handles GET /renders requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /renders/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(foundJob))
}

// GetLog handles GET /renders/{id}/log requests.
func (h *Handlers) GetLog(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	log, err := h.service.GetLog(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, renderlog.ErrLogNotFound) {
			writeError(w, http.StatusNotFound, "render log not found", "LOG_NOT_FOUND")
			return
		}
		h.logger.Error("failed to read render log",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read render log", "LOG_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, log)
}

// CaptionStyles handles GET /caption-styles requests.
func (h *Handlers) CaptionStyles(w http.ResponseWriter, r *http.Request) {
	presets := captions.Presets()
	resp := make([]CaptionStyleResponse, 0, len(presets))
	for _, p := range presets {
		resp = append(resp, CaptionStyleResponse{
			Name:       p.Name,
			FontName:   p.FontName,
			FontSize:   p.FontSize,
			ForceStyle: p.ForceStyle(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
