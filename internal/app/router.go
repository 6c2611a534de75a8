package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/authcore-io/authcore/internal/assignment"
	audithttp "github.com/authcore-io/authcore/internal/audit/http"
	"github.com/authcore-io/authcore/internal/delegation"
	"github.com/authcore-io/authcore/internal/observability"
	"github.com/authcore-io/authcore/internal/permission"
	"github.com/authcore-io/authcore/internal/principal"
	"github.com/authcore-io/authcore/internal/roles"
	"github.com/authcore-io/authcore/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	PrincipalHandler  *principal.Handler
	RolesHandler      *roles.Handler
	AssignmentHandler *assignment.Handler
	PermissionHandler *permission.Handler
	DelegationHandler *delegation.Handler
	AuditHandler      *audithttp.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with authcore defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.PrincipalHandler != nil {
		r.Route("/principals", params.PrincipalHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/admin", params.RolesHandler.MountRoutes)
	}
	if params.AssignmentHandler != nil {
		r.Route("/assignments", params.AssignmentHandler.MountRoutes)
	}
	if params.PermissionHandler != nil {
		r.Route("/permissions", params.PermissionHandler.MountRoutes)
	}
	if params.DelegationHandler != nil {
		r.Route("/delegations", params.DelegationHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
