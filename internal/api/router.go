// Package api serves the read-only diagnostics endpoints.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/homebus/homebus/internal/binding"
	"github.com/homebus/homebus/internal/eventbus"
	"github.com/homebus/homebus/internal/metrics"
	"github.com/homebus/homebus/internal/middleware"
	"github.com/homebus/homebus/internal/node"
	"github.com/homebus/homebus/internal/threadpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BindingSource lists registered bindings. *binding.Manager implements it.
type BindingSource interface {
	Bindings() []binding.Info
	Info(typ string) (binding.Info, bool)
}

// PoolSource reports thread pool state. *threadpool.Registry implements it.
type PoolSource interface {
	Stats() threadpool.Stats
	Closed() bool
}

// BusSource reports subscriber counts. *eventbus.Bus implements it.
type BusSource interface {
	SubscriberCounts() map[eventbus.Channel]int
}

// Dependencies holds what the handlers read from.
type Dependencies struct {
	Node     node.Identity
	Bindings BindingSource
	Pools    PoolSource
	Bus      BusSource
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewRouter creates and configures the diagnostics router
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "DiagnosticsAPI")

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger, deps.Metrics))

	healthHandler := NewHealthHandler(deps.Node, deps.Pools, deps.Bus)
	bindingHandler := NewBindingHandler(deps.Bindings)
	runtimeHandler := NewRuntimeHandler(deps.Pools, deps.Bus)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/bindings", func(r chi.Router) {
			r.Get("/", bindingHandler.List)
			r.Get("/{type}", bindingHandler.Get)
		})
		r.Get("/pools", runtimeHandler.Pools)
		r.Get("/bus", runtimeHandler.Bus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "No such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Diagnostics endpoints are read-only", nil)
	})

	return r
}
