package handlers

import (
	"net/http"

	"pabili-backend/internal/config"
)

// MetaHandler exposes client-facing runtime settings.
type MetaHandler struct {
	polling config.PollingConfig
}

// NewMetaHandler creates a new meta handler
func NewMetaHandler(polling config.PollingConfig) *MetaHandler {
	return &MetaHandler{polling: polling}
}

// ClientConfig handles GET /api/v1/client-config. Updates in this
// system are poll-based; the intervals are served to clients instead
// of being hard-coded in them.
func (h *MetaHandler) ClientConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message_poll_seconds":      int(h.polling.MessageInterval.Seconds()),
		"notification_poll_seconds": int(h.polling.NotificationInterval.Seconds()),
	})
}
