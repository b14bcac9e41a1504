package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"LocalSpot/core/library"
	"LocalSpot/core/stream"
)

// statusForError maps the error taxonomy to an HTTP status. Forbidden and
// malformed ids are reported exactly like missing ones.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, library.ErrMalformed),
		errors.Is(err, library.ErrForbidden),
		errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, stream.ErrRangeUnsatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// statusClientClosedRequest is only ever logged; the client is gone.
const statusClientClosedRequest = 499

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeEmpty sends status with no body.
func writeEmpty(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(status)
}
