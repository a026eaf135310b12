package api

import (
	"net/http"
	"time"

	"github.com/homebus/homebus/internal/eventbus"
	"github.com/homebus/homebus/internal/node"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	node  node.Identity
	pools PoolSource
	bus   BusSource
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(n node.Identity, pools PoolSource, bus BusSource) *HealthHandler {
	return &HealthHandler{node: n, pools: pools, bus: bus}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Node      string    `json:"node"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health handles GET /health (liveness probe)
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Node:      h.node.String(),
		Timestamp: time.Now(),
	})
}

// Ready handles GET /ready (readiness probe). The node is ready while the
// thread pools accept work and the bus has an item subscriber to route to.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"threadpools": "ok",
		"eventbus":    "ok",
	}
	ready := true

	if h.pools == nil || h.pools.Closed() {
		checks["threadpools"] = "closed"
		ready = false
	}
	if h.bus == nil || h.bus.SubscriberCounts()[eventbus.ChannelItems] == 0 {
		checks["eventbus"] = "no subscribers"
		ready = false
	}

	resp := ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    checks,
	}
	status := http.StatusOK
	if !ready {
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	sendJSON(w, status, resp)
}
