package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/procureflow/procureflow/internal/audit"
	"github.com/procureflow/procureflow/internal/auth"
	"github.com/procureflow/procureflow/internal/billing"
	"github.com/procureflow/procureflow/internal/budget"
	"github.com/procureflow/procureflow/internal/org"
	"github.com/procureflow/procureflow/internal/procurement"
	"github.com/procureflow/procureflow/internal/shared"
	"github.com/procureflow/procureflow/internal/transfer"
	"github.com/procureflow/procureflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	ActorResolver  *auth.Middleware

	AuthHandler        *auth.Handler
	ProcurementHandler *procurement.Handler
	TransferHandler    *transfer.Handler
	BillingHandler     *billing.Handler
	OrgHandler         *org.Handler
	BudgetHandler      *budget.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.ActorResolver.WithActor)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)

		r.Route("/procurement", func(r chi.Router) {
			params.ProcurementHandler.MountRoutes(r)
			params.TransferHandler.MountRoutes(r)
		})
		r.Route("/billing", params.BillingHandler.MountRoutes)
		params.OrgHandler.MountRoutes(r)
		params.BudgetHandler.MountRoutes(r)
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
