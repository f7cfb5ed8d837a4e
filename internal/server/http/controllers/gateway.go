package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvidaelabs/oddbot/internal/gateway"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

// GatewayController upgrades /ws requests into gateway sessions.
type GatewayController struct {
	gw     *gateway.Gateway
	logger log.Logger
	accept gateway.AcceptOptions
}

// NewGatewayController creates a new gateway controller.
func NewGatewayController(gw *gateway.Gateway, logger log.Logger) *GatewayController {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &GatewayController{gw: gw, logger: logger.WithComponent("http.ws")}
}

// RegisterRoutes registers GET /ws.
func (c *GatewayController) RegisterRoutes(r chi.Router) {
	r.Get("/ws", c.handleWS)
}

// handleWS validates ?replay= and ?filter= before upgrading, so a bad filter
// is a plain 400 rather than a closed socket.
func (c *GatewayController) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	replay, err := parseBool(q.Get("replay"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "replay must be a boolean")
		return
	}
	filter, err := gateway.CompileFilter(q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conn, err := gateway.Accept(w, r, c.accept)
	if err != nil {
		// Accept has already written the response.
		c.logger.Debug("websocket upgrade failed", log.Err(err))
		return
	}
	if err := c.gw.Serve(r.Context(), conn, gateway.SessionOptions{Replay: replay, Filter: filter}); err != nil {
		c.logger.Debug("session closed with error", log.Err(err))
	}
}
