package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/authcore-io/authcore/internal/observability"
	"github.com/authcore-io/authcore/internal/platform/httpx"
)

// Handler wires HTTP endpoints for role and permission administration.
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

// MountRoutes registers role administration routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRole)
	r.Patch("/roles/{id}", h.renameRole)
	r.Delete("/roles/{id}", h.deleteRole)

	r.Get("/permissions", h.listPermissions)
	r.Post("/permissions", h.createPermission)
	r.Delete("/permissions/{id}", h.deletePermission)

	r.Post("/roles/{id}/permissions", h.grantPermission)
	r.Delete("/roles/{id}/permissions/{permissionID}", h.revokePermission)
	r.Get("/roles/{id}/grants", h.listGrants)
}

type createRoleRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=120"`
	RoleTag string `json:"role_tag" validate:"required"`
	ActorID int64  `json:"actor_id" validate:"required,gt=0"`
}

type renameRoleRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=120"`
	ActorID int64  `json:"actor_id" validate:"required,gt=0"`
}

type createPermissionRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
	ActorID  int64  `json:"actor_id" validate:"required,gt=0"`
}

type grantPermissionRequest struct {
	PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
	ActorID      int64 `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": rows})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateRole(r.Context(), req.Name, req.RoleTag, req.ActorID)
	if err != nil {
		h.logger.Warn("create role", slog.String("name", req.Name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("role_create")
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) renameRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	var req renameRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.RenameRole(r.Context(), id, req.Name, req.ActorID)
	if err != nil {
		h.logger.Warn("rename role", slog.Int64("role_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("role_rename")
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	actorID, err := actorFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actor_id query parameter is required")
		return
	}
	if err := h.service.DeleteRole(r.Context(), id, actorID); err != nil {
		h.logger.Warn("delete role", slog.Int64("role_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("role_delete")
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": rows})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreatePermission(r.Context(), req.Name, req.Resource, req.Action, req.ActorID)
	if err != nil {
		h.logger.Warn("create permission", slog.String("name", req.Name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("permission_create")
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	actorID, err := actorFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actor_id query parameter is required")
		return
	}
	if err := h.service.DeletePermission(r.Context(), id, actorID); err != nil {
		h.logger.Warn("delete permission", slog.Int64("permission_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("permission_delete")
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathInt64(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	var req grantPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grant, err := h.service.GrantPermission(r.Context(), roleID, req.PermissionID, req.ActorID)
	if err != nil {
		h.logger.Warn("grant permission", slog.Int64("role_id", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("permission_grant")
	httpx.JSON(w, http.StatusCreated, grant)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathInt64(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	permissionID, err := pathInt64(r, "permissionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "permission id must be an integer")
		return
	}
	actorID, err := actorFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actor_id query parameter is required")
		return
	}
	if err := h.service.RevokePermission(r.Context(), roleID, permissionID, actorID); err != nil {
		h.logger.Warn("revoke permission", slog.Int64("role_id", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveMutation("permission_revoke")
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathInt64(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	rows, err := h.service.ListGrants(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": rows})
}

func pathInt64(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

func actorFromQuery(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidActor
	}
	return id, nil
}

var errInvalidActor = errors.New("invalid actor id")
