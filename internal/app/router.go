package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-logistics/meridian/internal/allocation"
	"github.com/meridian-logistics/meridian/internal/fleet"
	"github.com/meridian-logistics/meridian/internal/ledger"
	"github.com/meridian-logistics/meridian/internal/observability"
	"github.com/meridian-logistics/meridian/internal/orders"
	"github.com/meridian-logistics/meridian/internal/reconcile"
	"github.com/meridian-logistics/meridian/internal/reporting"
	"github.com/meridian-logistics/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	FleetHandler      *fleet.Handler
	OrdersHandler     *orders.Handler
	LedgerHandler     *ledger.Handler
	ReconcileHandler  *reconcile.Handler
	AllocationHandler *allocation.Handler
	ReportingHandler  *reporting.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
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

	r.Route("/fleet", params.FleetHandler.MountRoutes)
	r.Route("/companies", params.OrdersHandler.MountCompanyRoutes)
	r.Route("/pickups", params.OrdersHandler.MountPickupRoutes)
	r.Route("/invoices", params.OrdersHandler.MountInvoiceRoutes)
	r.Route("/ledger", params.LedgerHandler.MountRoutes)
	r.Route("/payments", params.ReconcileHandler.MountRoutes)
	r.Route("/allocations", params.AllocationHandler.MountRoutes)
	r.Route("/reports", params.ReportingHandler.MountRoutes)
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
