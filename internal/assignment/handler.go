package assignment

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/authcore-io/authcore/internal/observability"
	"github.com/authcore-io/authcore/internal/platform/httpx"
)

// Handler wires HTTP endpoints for role assignment.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers assignment routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/grants", h.grant)
	r.Post("/grants/temporary", h.grantTemporary)
	r.Post("/grants/revoke", h.revoke)
	r.Get("/principals/{id}/roles", h.effectiveRoles)
	r.Get("/principals/{id}/roles/check", h.check)
	r.Get("/principals/{id}/history", h.history)
	r.Get("/roles/{tag}/principals", h.principalsByRole)
}

type grantRequest struct {
	PrincipalID int64  `json:"principal_id" validate:"required,gt=0"`
	RoleTag     string `json:"role_tag" validate:"required"`
	Scope       string `json:"scope"`
	ManagedBy   int64  `json:"managed_by" validate:"required,gt=0"`
}

type temporaryGrantRequest struct {
	PrincipalID int64     `json:"principal_id" validate:"required,gt=0"`
	RoleTag     string    `json:"role_tag" validate:"required"`
	Scope       string    `json:"scope"`
	ExpiresAt   time.Time `json:"expires_at" validate:"required"`
	AssignedBy  int64     `json:"assigned_by" validate:"required,gt=0"`
}

type revokeRequest struct {
	PrincipalID int64  `json:"principal_id" validate:"required,gt=0"`
	RoleTag     string `json:"role_tag" validate:"required"`
	ManagedBy   int64  `json:"managed_by" validate:"required,gt=0"`
}

type assignmentRow struct {
	ID          int64      `json:"id"`
	PrincipalID int64      `json:"principal_id"`
	RoleID      int64      `json:"role_id"`
	RoleTag     string     `json:"role_tag"`
	Level       int        `json:"level"`
	Scope       string     `json:"scope,omitempty"`
	AssignedBy  int64      `json:"assigned_by"`
	AssignedAt  time.Time  `json:"assigned_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
}

func toRow(a Assignment) assignmentRow {
	return assignmentRow{
		ID:          a.ID,
		PrincipalID: a.PrincipalID,
		RoleID:      a.RoleID,
		RoleTag:     string(a.RoleTag),
		Level:       a.Level(),
		Scope:       a.Scope,
		AssignedBy:  a.AssignedBy,
		AssignedAt:  a.AssignedAt,
		ExpiresAt:   a.ExpiresAt,
		Active:      a.Active,
	}
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Grant(r.Context(), req.PrincipalID, req.RoleTag, req.Scope, req.ManagedBy)
	if err != nil {
		h.logger.Warn("grant role", slog.Int64("principal_id", req.PrincipalID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("grant")
	httpx.JSON(w, http.StatusCreated, toRow(created))
}

func (h *Handler) grantTemporary(w http.ResponseWriter, r *http.Request) {
	var req temporaryGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.AssignTemporary(r.Context(), req.PrincipalID, req.RoleTag, req.Scope, req.ExpiresAt, req.AssignedBy)
	if err != nil {
		h.logger.Warn("grant temporary role", slog.Int64("principal_id", req.PrincipalID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("grant_temporary")
	httpx.JSON(w, http.StatusCreated, toRow(created))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Revoke(r.Context(), req.PrincipalID, req.RoleTag, req.ManagedBy); err != nil {
		h.logger.Warn("revoke role", slog.Int64("principal_id", req.PrincipalID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("revoke")
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (h *Handler) effectiveRoles(w http.ResponseWriter, r *http.Request) {
	principalID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	active, err := h.service.EffectiveRoles(r.Context(), principalID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows := make([]assignmentRow, 0, len(active))
	for _, a := range active {
		rows = append(rows, toRow(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": rows})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	principalID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	tag := r.URL.Query().Get("role")
	if tag == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role query parameter is required")
		return
	}
	includeHigher := r.URL.Query().Get("include_higher") == "true"
	ok, err := h.service.Check(r.Context(), principalID, tag, includeHigher)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind := "role"
	if includeHigher {
		kind = "role_or_higher"
	}
	h.metrics.ObserveCheck(kind, ok)
	httpx.JSON(w, http.StatusOK, map[string]any{"allowed": ok})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	principalID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	from, to, err := historyWindow(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	records, err := h.service.History(r.Context(), principalID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows := make([]assignmentRow, 0, len(records))
	for _, a := range records {
		rows = append(rows, toRow(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": rows})
}

func (h *Handler) principalsByRole(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.ListPrincipalsByRole(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"principal_ids": ids})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// historyWindow parses the optional from/to query bounds. An absent bound
// stays a zero time, which the service treats as unbounded.
func historyWindow(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, err
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, err
		}
		to = t
	}
	return from, to, nil
}
