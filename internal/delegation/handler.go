package delegation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/authcore-io/authcore/internal/platform/httpx"
)

// Handler wires HTTP endpoints for role-management delegation.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers delegation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.delegate)
	r.Delete("/{id}", h.revoke)
	r.Get("/principals/{id}", h.listForDelegate)
	r.Get("/principals/{id}/can-manage", h.canManage)
}

type delegateRequest struct {
	DelegatorID int64    `json:"delegator_id" validate:"required,gt=0"`
	DelegateID  int64    `json:"delegate_id" validate:"required,gt=0"`
	RoleTags    []string `json:"role_tags" validate:"required,min=1"`
}

func (h *Handler) delegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Delegate(r.Context(), req.DelegatorID, req.DelegateID, req.RoleTags)
	if err != nil {
		h.logger.Warn("delegate role management",
			slog.Int64("delegator_id", req.DelegatorID),
			slog.Int64("delegate_id", req.DelegateID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	delegationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	actorID, err := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	if err != nil || actorID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actor_id query parameter is required")
		return
	}
	if err := h.service.Revoke(r.Context(), delegationID, actorID); err != nil {
		h.logger.Warn("revoke delegation", slog.Int64("delegation_id", delegationID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (h *Handler) listForDelegate(w http.ResponseWriter, r *http.Request) {
	delegateID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	rows, err := h.service.ListForDelegate(r.Context(), delegateID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"delegations": rows})
}

func (h *Handler) canManage(w http.ResponseWriter, r *http.Request) {
	delegateID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	tag := r.URL.Query().Get("role")
	if tag == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role query parameter is required")
		return
	}
	ok, err := h.service.CanManage(r.Context(), delegateID, tag)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allowed": ok})
}
