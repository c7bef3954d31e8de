// Package handlers provides HTTP handlers for the assistant API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rtvpioli/assistant-engine/internal/chat"
	"github.com/rtvpioli/assistant-engine/internal/observability"
)

// ChatService is the conversation surface the handler needs.
type ChatService interface {
	Welcome(ctx context.Context, clientIP string) (*chat.TurnReply, error)
	Handle(ctx context.Context, sessionKey, text string) (*chat.TurnReply, error)
}

// ChatHandler handles the public chat endpoints.
type ChatHandler struct {
	logger  *observability.Logger
	service ChatService
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(logger *observability.Logger, service ChatService) *ChatHandler {
	return &ChatHandler{
		logger:  logger,
		service: service,
	}
}

type messageRequest struct {
	SessionKey string `json:"session_key"`
	Message    string `json:"message"`
}

// Welcome handles POST /chat/welcome. It opens a session and returns the
// greeting together with the session key the widget uses from then on.
func (h *ChatHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	reply, err := h.service.Welcome(r.Context(), clientIP(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to start session")
		writeError(w, http.StatusInternalServerError, "could not start session", "")
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// Message handles POST /chat/message.
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if req.SessionKey == "" {
		writeError(w, http.StatusBadRequest, "session_key is required", "")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required", "")
		return
	}

	reply, err := h.service.Handle(r.Context(), req.SessionKey, req.Message)
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":    "sesión no encontrada",
			"expirada": true,
		})
		return
	case errors.Is(err, chat.ErrSessionExpired):
		writeJSON(w, http.StatusGone, map[string]interface{}{
			"error":    "sesión expirada",
			"expirada": true,
		})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("session_key", req.SessionKey).Msg("Turn failed")
		writeError(w, http.StatusInternalServerError, "could not process message", "")
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// clientIP trusts the RealIP middleware upstream, which rewrites RemoteAddr
// from X-Forwarded-For. A bare address comes through without a port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
