package permission

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/authcore-io/authcore/internal/observability"
	"github.com/authcore-io/authcore/internal/platform/httpx"
)

// Handler wires HTTP endpoints for permission resolution.
type Handler struct {
	logger    *slog.Logger
	resolver  *Resolver
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		resolver:  resolver,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers permission routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.checkPermission)
	r.Post("/check-roles", h.checkRoles)
	r.Get("/roles/{id}/permissions", h.rolePermissions)
}

type permissionCheckRequest struct {
	PrincipalID int64  `json:"principal_id" validate:"required,gt=0"`
	Resource    string `json:"resource" validate:"required"`
	Action      string `json:"action" validate:"required"`
}

type roleCheckRequest struct {
	PrincipalID int64    `json:"principal_id" validate:"required,gt=0"`
	RoleTags    []string `json:"role_tags" validate:"required,min=1"`
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionCheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	allowed, err := h.resolver.HasPermission(r.Context(), req.PrincipalID, req.Resource, req.Action)
	if err != nil {
		h.logger.Warn("permission check", slog.Int64("principal_id", req.PrincipalID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveCheck("permission", allowed)
	httpx.JSON(w, http.StatusOK, map[string]any{"allowed": allowed})
}

func (h *Handler) checkRoles(w http.ResponseWriter, r *http.Request) {
	var req roleCheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	holds, err := h.resolver.HasAnyRole(r.Context(), req.PrincipalID, req.RoleTags)
	if err != nil {
		h.logger.Warn("role membership check", slog.Int64("principal_id", req.PrincipalID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveCheck("membership", holds)
	httpx.JSON(w, http.StatusOK, map[string]any{"allowed": holds})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	perms, err := h.resolver.RolePermissions(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}
