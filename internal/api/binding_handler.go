package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/homebus/homebus/internal/binding"
)

// BindingHandler exposes binding registrations.
type BindingHandler struct {
	bindings BindingSource
}

func NewBindingHandler(bindings BindingSource) *BindingHandler {
	return &BindingHandler{bindings: bindings}
}

type bindingListResponse struct {
	Bindings []binding.Info `json:"bindings"`
	Count    int            `json:"count"`
}

// List handles GET /api/v1/bindings
func (h *BindingHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.bindings.Bindings()
	if list == nil {
		list = []binding.Info{}
	}
	sendJSON(w, http.StatusOK, bindingListResponse{Bindings: list, Count: len(list)})
}

// Get handles GET /api/v1/bindings/{type}
func (h *BindingHandler) Get(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	info, ok := h.bindings.Info(typ)
	if !ok {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "binding "+typ+" not registered", nil)
		return
	}
	sendJSON(w, http.StatusOK, info)
}
