package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvidaelabs/oddbot/internal/eventlog"
	eventsvc "github.com/corvidaelabs/oddbot/internal/services/events"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

// StreamsController handles stream administration.
//
// It covers create, list, info and delete, plus the clear operation that
// streams its progress back as newline-delimited JSON.
type StreamsController struct {
	svc    *eventsvc.Service
	logger log.Logger
}

// NewStreamsController creates a new streams controller.
func NewStreamsController(svc *eventsvc.Service, logger log.Logger) *StreamsController {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &StreamsController{svc: svc, logger: logger.WithComponent("http.streams")}
}

// RegisterRoutes registers all stream routes.
func (c *StreamsController) RegisterRoutes(r chi.Router) {
	r.Route("/streams", func(r chi.Router) {
		r.Get("/", c.handleList)
		r.Post("/", c.handleCreate)
		r.Get("/{name}", c.handleInfo)
		r.Delete("/{name}", c.handleDelete)
		r.Post("/{name}/clear", c.handleClear)
	})
}

func (c *StreamsController) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := c.svc.ListStreams(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"streams": list})
}

// handleCreate creates a stream. Returns 201 with its info, 409 if the name
// is taken and 400 for an invalid name or subject.
func (c *StreamsController) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createStreamReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	info, err := c.svc.CreateStream(r.Context(), eventlog.StreamConfig{
		Name:        req.Name,
		Subjects:    req.Subjects,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, info)
}

func (c *StreamsController) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := c.svc.StreamInfo(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, info)
}

func (c *StreamsController) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := c.svc.DeleteStream(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeNoContent(w)
}

// handleClear drains the stream through a throwaway consumer. The response
// is NDJSON: one {"batch","total"} line per batch, then {"done":true,"total"}.
// A failure after the first line is reported as a final {"error"} line.
func (c *StreamsController) handleClear(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req clearStreamReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BatchSize < 0 {
		writeError(w, http.StatusBadRequest, "batch_size must not be negative")
		return
	}
	if _, err := c.svc.StreamInfo(r.Context(), name); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	emit := func(p clearProgress) {
		_ = enc.Encode(p)
		if flusher != nil {
			flusher.Flush()
		}
	}

	total, err := c.svc.ClearStream(r.Context(), name, req.BatchSize, func(batch, total int) {
		emit(clearProgress{Batch: batch, Total: total})
	})
	if err != nil {
		c.logger.Warn("clear failed", log.Str("stream", name), log.Int("total", total), log.Err(err))
		emit(clearProgress{Total: total, Error: err.Error()})
		return
	}
	emit(clearProgress{Done: true, Total: total})
}
