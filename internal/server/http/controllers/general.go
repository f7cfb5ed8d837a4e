package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvidaelabs/oddbot/internal/runtime"
)

// GeneralController serves health and metrics.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers /health and /metrics.
func (c *GeneralController) RegisterRoutes(r chi.Router) {
	r.Get("/health", c.handleHealth)
	r.Method(http.MethodGet, "/metrics", c.rt.Metrics().Handler())
}

// handleHealth returns plain "OK" while the store is usable and 503
// otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not serving"))
		return
	}
	_, _ = w.Write([]byte("OK"))
}
