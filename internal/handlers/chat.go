package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/eldtechnologies/globalchat/internal/metrics"
	"github.com/eldtechnologies/globalchat/internal/models"
	"github.com/eldtechnologies/globalchat/internal/store"
)

// ChatResponse represents the full chat state.
type ChatResponse struct {
	Messages    []models.Message `json:"messages"`
	ActiveUsers []string         `json:"activeUsers"`
}

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	SessionID string `json:"sessionId"`
}

// PostMessageResponse represents the post message response.
type PostMessageResponse struct {
	Success bool           `json:"success"`
	Message models.Message `json:"message"`
}

// SuccessResponse is returned by endpoints with nothing else to report.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// GetChat returns every stored message and the active users.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	messages, users, err := h.store.Chat(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("read chat")
		h.Error(w, http.StatusInternalServerError, "failed to read chat")
		return
	}

	h.JSON(w, http.StatusOK, ChatResponse{
		Messages:    messages,
		ActiveUsers: users,
	})
}

// PostMessage appends a message to the global room.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := decode(r, &req); err != nil {
		h.invalid(w, r, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Text) == "" ||
		strings.TrimSpace(req.Sender) == "" ||
		strings.TrimSpace(req.SessionID) == "" {
		h.invalid(w, r, errMissingFields)
		return
	}

	msg, err := h.store.AddMessage(r.Context(), req.Text, req.Sender)
	if errors.Is(err, store.ErrMissingFields) {
		h.invalid(w, r, errMissingFields)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("store message")
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	metrics.MessagesPosted.Inc()
	h.logger.Debug().
		Str("id", msg.ID).
		Str("sender", msg.Sender).
		Msg("message posted")

	h.JSON(w, http.StatusOK, PostMessageResponse{
		Success: true,
		Message: msg,
	})
}

// Clear empties the message list.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("clear chat")
		h.Error(w, http.StatusInternalServerError, "failed to clear chat")
		return
	}

	metrics.ChatClears.Inc()
	h.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("chat cleared")

	h.JSON(w, http.StatusOK, SuccessResponse{Success: true})
}
