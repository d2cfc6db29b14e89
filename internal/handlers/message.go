package handlers

import (
	"encoding/json"
	"net/http"

	"pabili-backend/internal/middleware"
	"pabili-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// MessageHandler handles per-errand chat HTTP requests
type MessageHandler struct {
	messageService *services.MessageService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageService *services.MessageService) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
	}
}

type sendMessageRequest struct {
	MessageText string `json:"message_text"`
}

// Send handles POST /api/v1/errands/{errand_id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	errandID := chi.URLParam(r, "errand_id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.messageService.Send(ctx, userID, errandID, req.MessageText)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("errand_id", errandID).
			Msg("Failed to send message")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, msg)
}

// History handles GET /api/v1/errands/{errand_id}/messages. Clients
// poll this at the configured interval; there is no push channel.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	errandID := chi.URLParam(r, "errand_id")

	messages, err := h.messageService.History(ctx, userID, errandID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"total":    len(messages),
	})
}
