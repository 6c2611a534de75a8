// Package audithttp exposes the audit timeline to the administrative surface.
package audithttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/authcore-io/authcore/internal/audit"
	"github.com/authcore-io/authcore/internal/platform/httpx"
)

// Handler serves audit timeline and activity endpoints.
type Handler struct {
	service  *audit.Service
	exporter *audit.Exporter
	logger   *slog.Logger
}

// NewHandler constructs an audit HTTP handler.
func NewHandler(service *audit.Service, exporter *audit.Exporter, logger *slog.Logger) *Handler {
	return &Handler{service: service, exporter: exporter, logger: logger}
}

// MountRoutes attaches audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeline", h.timeline)
	r.Get("/timeline/export", h.export)
	r.Get("/principals/{id}/activity", h.activity)
}

type timelineRow struct {
	ID       string    `json:"id"`
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id"`
	Action   string    `json:"action"`
	Before   any       `json:"before,omitempty"`
	After    any       `json:"after,omitempty"`
	ActorID  int64     `json:"actor_id"`
	At       time.Time `json:"at"`
}

type timelineResponse struct {
	Rows   []timelineRow `json:"rows"`
	Page   int           `json:"page"`
	Next   int           `json:"next_page,omitempty"`
	Prev   int           `json:"prev_page,omitempty"`
	HasNxt bool          `json:"has_next"`
}

func timelineFilters(r *http.Request) (audit.TimelineFilters, bool, string) {
	filters := audit.TimelineFilters{
		Entity: r.URL.Query().Get("entity"),
		Action: r.URL.Query().Get("action"),
	}
	if raw := r.URL.Query().Get("actor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filters, false, "actor_id must be an integer"
		}
		filters.ActorID = id
	}
	for _, f := range []struct {
		param  string
		target *time.Time
	}{{"from", &filters.From}, {"to", &filters.To}} {
		if raw := r.URL.Query().Get(f.param); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return filters, false, f.param + " must be RFC3339"
			}
			*f.target = t
		}
	}
	filters.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filters.PageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	return filters, true, ""
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, ok, detail := timelineFilters(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := timelineResponse{
		Page:   result.Paging.Page,
		Next:   result.Paging.NextPage,
		Prev:   result.Paging.PrevPage,
		HasNxt: result.Paging.HasNext,
		Rows:   make([]timelineRow, 0, len(result.Rows)),
	}
	for _, rec := range result.Rows {
		resp.Rows = append(resp.Rows, timelineRow{
			ID:       rec.ID.String(),
			Entity:   rec.Entity,
			EntityID: rec.EntityID,
			Action:   rec.Action,
			Before:   rawOrNil(rec.Before),
			After:    rawOrNil(rec.After),
			ActorID:  rec.ActorID,
			At:       rec.At,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, ok, detail := timelineFilters(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	csvBytes, err := h.exporter.WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	principalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.service.ActivityHistory(r.Context(), principalID, limit)
	if err != nil {
		h.logger.Error("activity history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"activity": records})
}

func rawOrNil(raw []byte) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return jsonRaw(raw)
}

type jsonRaw []byte

func (r jsonRaw) MarshalJSON() ([]byte, error) { return r, nil }
