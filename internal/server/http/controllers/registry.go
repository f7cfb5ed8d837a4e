package controllers

import (
	"github.com/go-chi/chi/v5"

	"github.com/corvidaelabs/oddbot/internal/gateway"
	"github.com/corvidaelabs/oddbot/internal/runtime"
	eventsvc "github.com/corvidaelabs/oddbot/internal/services/events"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	squeaks *SqueaksController
	streams *StreamsController
	ws      *GatewayController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, svc *eventsvc.Service, gw *gateway.Gateway, logger log.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		squeaks: NewSqueaksController(svc),
		streams: NewStreamsController(svc, logger),
		ws:      NewGatewayController(gw, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given router.
func (r *ControllerRegistry) RegisterAllRoutes(router chi.Router) {
	r.general.RegisterRoutes(router)
	r.ws.RegisterRoutes(router)
	router.Route("/v1", func(v1 chi.Router) {
		r.squeaks.RegisterRoutes(v1)
		r.streams.RegisterRoutes(v1)
	})
}
