// Package handler exposes the sync server over HTTP and WebSocket.
package handler

import (
	"net/http"

	"github.com/donahelp/fluxo-sync-go/internal/infra/bus"
	"github.com/donahelp/fluxo-sync-go/internal/infra/observability"
	"github.com/donahelp/fluxo-sync-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract of the Controle de Fluxo clients.
func NewRouter(svc *service.LedgerService, hub *bus.Hub, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	// The dashboard is served from anywhere on the shop's LAN, so the
	// API stays open to any origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- Event stream ---
	r.Get("/ws", wsHandler(svc, hub, logger))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/transactions", listTransactionsHandler(svc, logger))
		r.Post("/transactions", addTransactionHandler(svc, logger))
		r.Delete("/transactions/{id}", deleteTransactionHandler(svc, logger))
		r.Get("/transactions/summary", summaryHandler(svc, logger))
		r.Get("/transactions/cashflow", cashflowHandler(svc, logger))

		r.Get("/services", listServicesHandler(svc, logger))
		r.Put("/services/{id}", updateServicePriceHandler(svc, logger))

		r.Get("/settings", listSettingsHandler(svc, logger))
		r.Put("/settings/{key}", updateSettingHandler(svc, logger))

		r.Get("/sync/stats", syncStatsHandler(metrics, logger))

		r.Get("/export/excel", exportExcelHandler(svc, logger))
	})

	return r
}

// healthzHandler probes the database through the settings table.
func healthzHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.ListSettings(r.Context()); err != nil {
			logger.Error("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func syncStatsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSyncSnapshot())
	}
}
