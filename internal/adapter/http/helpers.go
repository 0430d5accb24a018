// Package http exposes the ingest and query API over chi.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/provgraph/provgraph/internal/domain"
	"github.com/provgraph/provgraph/internal/domain/identity"
	"github.com/provgraph/provgraph/internal/domain/prov"
)

func isValidationError(err error) bool {
	return errors.Is(err, prov.ErrMissingScope) ||
		errors.Is(err, prov.ErrMissingTaskID) ||
		errors.Is(err, prov.ErrUnknownEventKind) ||
		errors.Is(err, prov.ErrMissingField) ||
		errors.Is(err, identity.ErrInvalidIdentifier)
}

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "graph was modified by another writer")
	case errors.Is(err, domain.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "graph store unavailable")
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
