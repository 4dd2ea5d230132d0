package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/globalchat/internal/metrics"
	"github.com/eldtechnologies/globalchat/internal/store"
)

// errMissingFields is the body returned for any absent or blank required field.
const errMissingFields = "Missing required fields"

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  store.Store
	logger zerolog.Logger
}

// NewHandler creates a new Handler backed by the given store.
func NewHandler(s store.Store, logger zerolog.Logger) *Handler {
	return &Handler{store: s, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("encode response")
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// invalid rejects a request that failed validation.
func (h *Handler) invalid(w http.ResponseWriter, r *http.Request, message string) {
	metrics.ValidationFailures.WithLabelValues(r.URL.Path).Inc()
	h.logger.Debug().
		Str("path", r.URL.Path).
		Str("reason", message).
		Msg("request rejected")
	h.Error(w, http.StatusBadRequest, message)
}

// decode reads a JSON body into v. An empty body leaves v zeroed.
func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
