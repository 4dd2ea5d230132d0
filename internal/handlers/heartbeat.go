package handlers

import (
	"errors"
	"net/http"

	"github.com/eldtechnologies/globalchat/internal/metrics"
	"github.com/eldtechnologies/globalchat/internal/store"
)

// HeartbeatRequest represents the heartbeat request.
type HeartbeatRequest struct {
	Username  string `json:"username"`
	SessionID string `json:"sessionId"`
}

// HeartbeatResponse represents the heartbeat response.
type HeartbeatResponse struct {
	Success     bool     `json:"success"`
	ActiveUsers []string `json:"activeUsers"`
}

// Heartbeat records that a session's user is still present.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := decode(r, &req); err != nil {
		h.invalid(w, r, "invalid JSON body")
		return
	}

	users, err := h.store.Heartbeat(r.Context(), req.SessionID, req.Username)
	if errors.Is(err, store.ErrMissingFields) {
		h.invalid(w, r, errMissingFields)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("record heartbeat")
		h.Error(w, http.StatusInternalServerError, "failed to record heartbeat")
		return
	}

	metrics.HeartbeatsReceived.Inc()

	h.JSON(w, http.StatusOK, HeartbeatResponse{
		Success:     true,
		ActiveUsers: users,
	})
}
