package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"commerce-insights/internal/errors"
	"commerce-insights/internal/models"
	"commerce-insights/internal/observability"
	"commerce-insights/internal/services"
	"commerce-insights/internal/ui/templates"
	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"
)

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// filterSignals mirrors the page's filters signal. Every value is a string
// and "all" is the wildcard.
type filterSignals struct {
	Year     string `json:"year"`
	Region   string `json:"region"`
	Category string `json:"category"`
	Product  string `json:"product"`
}

type pageSignals struct {
	Filters filterSignals `json:"filters"`
}

func toSignals(f models.Filters) filterSignals {
	value := func(d models.Dimension) string {
		if v := f.Value(d); v != "" {
			return v
		}
		return models.Wildcard
	}
	return filterSignals{
		Year:     value(models.DimensionYear),
		Region:   value(models.DimensionRegion),
		Category: value(models.DimensionCategory),
		Product:  value(models.DimensionProduct),
	}
}

func (s filterSignals) value(d models.Dimension) string {
	switch d {
	case models.DimensionYear:
		return s.Year
	case models.DimensionRegion:
		return s.Region
	case models.DimensionCategory:
		return s.Category
	}
	return s.Product
}

// updateFrom builds the update for the dimensions whose signal differs from
// the current selection. The browser always posts the full signal set, so
// sending it unchanged would mark every dimension as touched and defeat the
// product reset on scope changes.
func updateFrom(current models.Filters, in filterSignals) models.FilterUpdate {
	var u models.FilterUpdate
	for _, d := range models.Dimensions {
		next := strings.TrimSpace(in.value(d))
		if strings.EqualFold(next, models.Wildcard) {
			next = ""
		}
		prev := current.Value(d)

		same := next == prev
		if d != models.DimensionProduct {
			same = strings.EqualFold(next, prev)
		}
		if same {
			continue
		}

		v := models.Set(next)
		switch d {
		case models.DimensionYear:
			u.Year = v
		case models.DimensionRegion:
			u.Region = v
		case models.DimensionCategory:
			u.Category = v
		case models.DimensionProduct:
			u.Product = v
		}
	}
	return u
}

// HandleRefresh streams the current snapshot. A session whose load failed
// gets the error in the status line instead.
func (h *SSEHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	logger := observability.LoggerFrom(r.Context(), h.logger)

	snapshot, err := h.analytics.Snapshot()
	if err != nil {
		h.patchStatus(r, sse, logger, errorMessage(err), true)
		return
	}
	h.patchSnapshot(r, sse, logger, snapshot, nil)
}

// HandleFilters reads the filters signal, applies what changed and streams
// the recomputed snapshot.
func (h *SSEHandlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFrom(r.Context(), h.logger)

	var signals pageSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		errors.WriteError(w, logger, errors.BadRequestWrap(err, "invalid filter signals"), observability.GetRequestID(r.Context()))
		return
	}

	sse := datastar.NewSSE(w, r)

	snapshot, reset, err := h.analytics.SelectWith(r.Context(), func(current models.Filters) models.FilterUpdate {
		return updateFrom(current, signals.Filters)
	})
	if err != nil {
		h.patchStatus(r, sse, logger, errorMessage(err), true)
		return
	}
	h.patchSnapshot(r, sse, logger, snapshot, reset)
}

func (h *SSEHandlers) patchSnapshot(r *http.Request, sse *datastar.ServerSentEventGenerator, logger *slog.Logger, snapshot models.Snapshot, reset []models.Dimension) {
	if reset == nil {
		reset = []models.Dimension{}
	}

	signals, err := json.Marshal(map[string]any{
		"filters":  toSignals(snapshot.Filters),
		"snapshot": snapshot,
		"reset":    reset,
	})
	if err != nil {
		logger.Error("marshal snapshot signals", "error", err)
		return
	}
	if err := sse.PatchSignals(signals); err != nil {
		logger.Warn("patch signals", "error", err)
		return
	}

	fragments := []templ.Component{templates.KPIPanel(snapshot)}
	for _, d := range models.Dimensions {
		fragments = append(fragments, templates.FilterOptions(d, snapshot.Options.For(d), snapshot.Filters.Value(d)))
	}
	for _, c := range fragments {
		if !h.patch(r, sse, logger, c) {
			return
		}
	}

	message := fmt.Sprintf("%d records", snapshot.RecordCount)
	if len(reset) > 0 {
		names := make([]string, len(reset))
		for i, d := range reset {
			names[i] = string(d)
		}
		message = fmt.Sprintf("Reset to all: %s", strings.Join(names, ", "))
	}
	h.patchStatus(r, sse, logger, message, false)
}

func (h *SSEHandlers) patchStatus(r *http.Request, sse *datastar.ServerSentEventGenerator, logger *slog.Logger, message string, isError bool) {
	h.patch(r, sse, logger, templates.Status(message, isError))
}

func (h *SSEHandlers) patch(r *http.Request, sse *datastar.ServerSentEventGenerator, logger *slog.Logger, c templ.Component) bool {
	var buf strings.Builder
	if err := c.Render(r.Context(), &buf); err != nil {
		logger.Error("render fragment", "error", err)
		return false
	}
	if err := sse.PatchElements(buf.String()); err != nil {
		logger.Warn("patch elements", "error", err)
		return false
	}
	return true
}
