package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/paintstock/paintstock/internal/discount"
	"github.com/paintstock/paintstock/internal/folio"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/observability"
	"github.com/paintstock/paintstock/internal/restock"
	"github.com/paintstock/paintstock/internal/sales"
	"github.com/paintstock/paintstock/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	RestockHandler   *restock.Handler
	DiscountHandler  *discount.Handler
	FolioHandler     *folio.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with paintstock defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	timeout := RequestTimeout(params.Config)

	r.Group(func(r chi.Router) {
		r.Use(timeout)

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		if params.InventoryHandler != nil {
			r.Route("/api/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/api/sales", params.SalesHandler.MountRoutes)
		}
		if params.RestockHandler != nil {
			r.Route("/api/movement-orders", params.RestockHandler.MountRoutes)
		}
		if params.FolioHandler != nil {
			r.Route("/api/folios", params.FolioHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		if params.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
		}
	})

	if params.DiscountHandler != nil {
		r.Route("/api/discounts", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(timeout)
				params.DiscountHandler.MountRoutes(r)
			})
			params.DiscountHandler.MountStreams(r)
		})
	}

	return r
}
