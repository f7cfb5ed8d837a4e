package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	eventsvc "github.com/corvidaelabs/oddbot/internal/services/events"
	"github.com/corvidaelabs/oddbot/internal/squeak"
)

const (
	defaultSqueakLimit = 20
	maxSqueakLimit     = 1000
)

// SqueaksController publishes and lists squeaks on the configured stream.
type SqueaksController struct {
	svc *eventsvc.Service
}

// NewSqueaksController creates a new squeaks controller.
func NewSqueaksController(svc *eventsvc.Service) *SqueaksController {
	return &SqueaksController{svc: svc}
}

// RegisterRoutes registers the squeak routes.
func (c *SqueaksController) RegisterRoutes(r chi.Router) {
	r.Post("/squeaks", c.handlePublish)
	r.Get("/squeaks", c.handleList)
}

// handlePublish builds a squeak from {content, author:{name}} and appends it.
// Returns 201 with the stored squeak.
func (c *SqueaksController) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishSqueakReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sq, err := c.svc.PublishSqueak(r.Context(), req.Author.Name, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, sq)
}

// handleList returns the newest squeaks in publish order.
func (c *SqueaksController) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultSqueakLimit, maxSqueakLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := c.svc.RecentSqueaks(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []squeak.Squeak{}
	}
	writeJSON(w, map[string]any{"squeaks": list})
}
