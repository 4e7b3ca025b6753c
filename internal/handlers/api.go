package handlers

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"commerce-insights/internal/errors"
	"commerce-insights/internal/models"
	"commerce-insights/internal/observability"
	"commerce-insights/internal/services"
)

const maxFilterBody = 4 << 10

var noStore = map[string]string{"Cache-Control": "no-store"}

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

type filtersResponse struct {
	Filters models.Filters `json:"filters"`
	Options models.Options `json:"options"`
}

type updateResponse struct {
	Snapshot models.Snapshot    `json:"snapshot"`
	Reset    []models.Dimension `json:"reset"`
}

func (h *APIHandlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.analytics.Snapshot()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, snapshot, noStore)
}

func (h *APIHandlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.analytics.Snapshot()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, filtersResponse{Filters: snapshot.Filters, Options: snapshot.Options}, noStore)
}

// HandleUpdateFilters applies a partial selection. Omitted fields keep their
// value; "all" selects the wildcard.
func (h *APIHandlers) HandleUpdateFilters(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFilterBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var update models.FilterUpdate
	if err := dec.Decode(&update); err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "request body must be a JSON filter update"))
		return
	}
	if dec.More() {
		h.fail(w, r, errors.BadRequest("request body must hold a single JSON filter update"))
		return
	}

	snapshot, reset, err := h.analytics.Select(r.Context(), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if reset == nil {
		reset = []models.Dimension{}
	}
	errors.WriteSuccessWithHeaders(w, updateResponse{Snapshot: snapshot, Reset: reset}, noStore)
}

func (h *APIHandlers) HandleResetFilters(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.analytics.Reset(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, updateResponse{Snapshot: snapshot, Reset: []models.Dimension{}}, noStore)
}

func (h *APIHandlers) HandleOptions(w http.ResponseWriter, r *http.Request) {
	d, err := models.ParseDimension(r.PathValue("dimension"))
	if err != nil {
		h.fail(w, r, errors.NotFound(err.Error()))
		return
	}

	options, err := h.analytics.Options(d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, map[string]any{
		"dimension": d,
		"options":   options,
	}, noStore)
}

// HandleHealth always answers 200; a failed load shows up as "degraded" so
// the process is not restarted while the data file is being fixed.
func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.analytics.Loaded() {
		status = "degraded"
	}

	healthData := map[string]string{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

// HandleReady answers 503 until the data file has loaded, for orchestrators
// that should hold traffic back from a replica without data.
func (h *APIHandlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if !h.analytics.Loaded() {
		h.fail(w, r, errors.ServiceUnavailable("dashboard data is not loaded"))
		return
	}
	errors.WriteSuccess(w, map[string]string{"status": "ready"})
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {

	stats := h.analytics.Stats()

	errors.WriteSuccess(w, stats)
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, observability.LoggerFrom(r.Context(), h.logger), appError(err), observability.GetRequestID(r.Context()))
}

// appError maps session errors onto API error codes.
func appError(err error) error {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, services.ErrNotLoaded):
		return errors.DataLoad(err, "dashboard data is not available")
	case stderrors.Is(err, services.ErrInvalidFilter):
		return errors.ValidationWrap(err, "invalid filter value")
	case stderrors.Is(err, services.ErrUnknownDimension):
		return errors.BadRequestWrap(err, "unknown filter dimension")
	}
	return err
}

// errorMessage is the user-facing text for err, used by the SSE fragments.
func errorMessage(err error) string {
	if appErr, ok := appError(err).(*errors.AppError); ok {
		if appErr.Code == errors.CodeDataLoad {
			return appErr.Message + ": " + err.Error()
		}
		return appErr.Message
	}
	return "An unexpected error occurred"
}
