// Package handlers contains HTTP request handlers for the custody API.
// Handlers parse requests, call services, and return JSON responses.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dnafasttrack/custody-server/internal/services"
	"github.com/dnafasttrack/custody-server/internal/store"
)

// Helper: respond with JSON
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Helper: respond with error
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service error kinds onto HTTP statuses without
// leaking internals. Anything unclassified is a plain 500.
func respondServiceError(w http.ResponseWriter, err error) {
	var validation *services.ValidationError
	var integrity *services.IntegrityError
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &integrity):
		respondError(w, http.StatusConflict, integrity.Error())
	case errors.Is(err, store.ErrLockTimeout):
		respondError(w, http.StatusServiceUnavailable, "store busy, retry")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
