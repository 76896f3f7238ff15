// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/safarnama/backoffice/internal/errors"
	"github.com/safarnama/backoffice/internal/service"
)

// WebhookHandler receives delivery status callbacks from the gateway provider
type WebhookHandler struct {
	Service *service.WebhookService
	Log     *zap.Logger
}

func (h *WebhookHandler) StatusEvent(w http.ResponseWriter, r *http.Request) {
	var ev service.StatusEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid JSON"))
		return
	}

	if err := h.Service.HandleStatusEvent(ev); err != nil {
		writeError(w, err)
		return
	}

	// Providers retry on non-2xx, so anything we processed (including
	// no-ops) acknowledges with 200.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
