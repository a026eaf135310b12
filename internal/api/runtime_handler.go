package api

import (
	"net/http"

	"github.com/homebus/homebus/internal/eventbus"
)

// RuntimeHandler reports thread pool and bus state.
type RuntimeHandler struct {
	pools PoolSource
	bus   BusSource
}

func NewRuntimeHandler(pools PoolSource, bus BusSource) *RuntimeHandler {
	return &RuntimeHandler{pools: pools, bus: bus}
}

type busResponse struct {
	Subscribers map[eventbus.Channel]int `json:"subscribers"`
}

// Pools handles GET /api/v1/pools
func (h *RuntimeHandler) Pools(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, h.pools.Stats())
}

// Bus handles GET /api/v1/bus
func (h *RuntimeHandler) Bus(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, busResponse{Subscribers: h.bus.SubscriberCounts()})
}
