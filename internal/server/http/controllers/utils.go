package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/squeak"
)

// Helper functions for common HTTP responses

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps an event log or squeak error to a status code and
// writes it.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, eventlog.ErrStreamExists):
		return http.StatusConflict
	case errors.Is(err, eventlog.ErrStreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, eventlog.ErrInvalidName),
		errors.Is(err, eventlog.ErrInvalidSubject),
		errors.Is(err, eventlog.ErrSubjectMismatch),
		errors.Is(err, squeak.ErrAuthorRequired),
		errors.Is(err, squeak.ErrContentRequired):
		return http.StatusBadRequest
	case errors.Is(err, eventlog.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseLimit parses a positive limit, returning def when absent and capping
// the result at max.
func parseLimit(s string, def, max int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

// parseBool parses an optional boolean query value.
func parseBool(s string, def bool) (bool, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}
