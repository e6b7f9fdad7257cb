package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/internal/exporter"
	"etaanalyzer/internal/middleware"
	"etaanalyzer/internal/operations"
	"etaanalyzer/internal/services"
)

const tracerName = "etaanalyzer.http"

var runStatuses = []string{
	string(operations.OperationStatusPending),
	string(operations.OperationStatusRunning),
	string(operations.OperationStatusCompleted),
	string(operations.OperationStatusFailed),
	string(operations.OperationStatusCancelled),
}

// RunsHandler serves /api/v1/runs
type RunsHandler struct {
	service    RunService
	validation *middleware.ValidationMiddleware
	query      *middleware.QueryParamValidator
	errors     *apperrors.ErrorHandler
	logger     *slog.Logger
}

// NewRunsHandler creates a run handler
func NewRunsHandler(service RunService, logger *slog.Logger) *RunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	errHandler := apperrors.NewErrorHandler(logger)
	return &RunsHandler{
		service:    service,
		validation: middleware.NewValidationMiddleware(logger, errHandler),
		query:      middleware.NewQueryParamValidator(errHandler),
		errors:     errHandler,
		logger:     logger.With(slog.String("handler", "runs")),
	}
}

// Routes sets up the run routes
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.ContentTypeValidator("application/json"))
	r.Use(h.validation.ValidateRequest)

	r.Post("/", h.SubmitRun)
	r.Get("/", h.ListRuns)
	r.Get("/{id}", h.GetRun)
	r.Get("/{id}/summary", h.GetSummary)
	return r
}

// runRequest is the body of POST /api/v1/runs
type runRequest struct {
	services.RunRequest
}

// Bind implements render.Binder
func (req *runRequest) Bind(r *http.Request) error {
	return nil
}

// runResponse is a run record plus its live step progress when tracked
type runResponse struct {
	*services.RunRecord
	Progress *operations.RunSnapshot `json:"progress,omitempty"`
}

// SubmitRun handles POST /api/v1/runs
func (h *RunsHandler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "runs_handler.submit",
		trace.WithAttributes(attribute.String("request_id", middleware.GetRequestID(r.Context()))))
	defer span.End()
	r = r.WithContext(ctx)

	body := &runRequest{}
	if err := render.Bind(r, body); err != nil {
		span.SetStatus(codes.Error, "bind failed")
		h.errors.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(body.RunRequest); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		h.errors.HandleError(w, r, err)
		return
	}

	id, err := h.service.Submit(body.RunRequest)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		h.handleError(w, r, err, body.Identifier)
		return
	}

	span.SetAttributes(attribute.String("run.id", id))
	h.logger.InfoContext(ctx, "run accepted",
		slog.String("run_id", id),
		slog.String("source", body.Source))

	w.Header().Set("Location", r.URL.Path+"/"+id)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"id":     id,
		"status": operations.OperationStatusPending,
	})
}

// ListRuns handles GET /api/v1/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	status, ok := h.query.ValidateEnum(w, r, "status", runStatuses, "")
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, 1000, 100)
	if !ok {
		return
	}

	runs := h.service.ListRuns(services.RunFilter{
		Status: operations.OperationStatusValue(status),
		Limit:  limit,
	})
	render.JSON(w, r, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /api/v1/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.service.GetRun(id)
	if err != nil {
		h.handleError(w, r, err, id)
		return
	}

	resp := runResponse{RunRecord: rec}
	if snapshot, ok := h.service.Progress(id); ok {
		resp.Progress = snapshot
	}
	render.JSON(w, r, resp)
}

// GetSummary handles GET /api/v1/runs/{id}/summary. With ?format=csv the
// summary is written in the same layout as the summary artifact.
func (h *RunsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	format, ok := h.query.ValidateEnum(w, r, "format", []string{"json", "csv"}, "json")
	if !ok {
		return
	}

	summary, err := h.service.Summary(id)
	if err != nil {
		h.handleError(w, r, err, id)
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := exporter.WriteSummaryCSV(w, summary); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to write summary csv",
				slog.String("run_id", id),
				slog.String("error", err.Error()))
		}
		return
	}
	render.JSON(w, r, summary)
}

// handleError maps service errors onto API errors
func (h *RunsHandler) handleError(w http.ResponseWriter, r *http.Request, err error, id string) {
	var apiErr *apperrors.APIError
	switch {
	case errors.Is(err, services.ErrRunNotFound):
		apiErr = apperrors.NewWithDetails(http.StatusNotFound, "RUN_NOT_FOUND", err.Error(), map[string]string{"id": id})
	case errors.Is(err, services.ErrRunNotComplete):
		apiErr = apperrors.NewWithDetails(http.StatusConflict, "RUN_NOT_COMPLETE", err.Error(), map[string]string{"id": id})
	case errors.Is(err, services.ErrNoSummary):
		apiErr = apperrors.NewWithDetails(http.StatusNotFound, "NO_SUMMARY", err.Error(), map[string]string{"id": id})
	case errors.Is(err, services.ErrRunExists):
		apiErr = apperrors.NewWithDetails(http.StatusConflict, "RUN_EXISTS", err.Error(), map[string]string{"id": id})
	case errors.Is(err, services.ErrShuttingDown):
		apiErr = apperrors.New(http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error())
	default:
		h.errors.HandleError(w, r, err)
		return
	}
	h.errors.HandleError(w, r, apiErr)
}
