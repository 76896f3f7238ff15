// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/safarnama/backoffice/internal/errors"
	"github.com/safarnama/backoffice/internal/service"
)

// CampaignHandler holds the dependencies for campaign-related HTTP handlers
type CampaignHandler struct {
	Service *service.CampaignService
	Stats   *service.StatsService
	Log     *zap.Logger
}

func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input service.CreateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid JSON"))
		return
	}

	campaign, err := h.Service.CreateCampaign(input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := h.Service.ListCampaigns(page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	campaign, err := h.Service.GetCampaign(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) AddRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var input service.AddRecipientsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid JSON"))
		return
	}

	result, err := h.Service.AddRecipients(id, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *CampaignHandler) RemoveRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var body struct {
		IDs []int `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid JSON"))
		return
	}

	removed, err := h.Service.RemoveRecipients(id, body.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *CampaignHandler) ListRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	recipients, pagination, err := h.Service.ListRecipients(id, page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       recipients,
		"pagination": pagination,
	})
}

func (h *CampaignHandler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	campaign, err := h.Service.Start(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, campaign)
}

func (h *CampaignHandler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Pause)
}

func (h *CampaignHandler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Resume)
}

func (h *CampaignHandler) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Cancel)
}

func (h *CampaignHandler) transition(w http.ResponseWriter, r *http.Request, op func(int) error) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	if err := op(id); err != nil {
		writeError(w, err)
		return
	}
	campaign, err := h.Service.GetCampaign(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var body struct {
		CustomerID   int    `json:"customer_id"`
		TemplateBody string `json:"template_body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, appErrors.NewValidation("body", "invalid JSON"))
		return
	}

	rendered, err := h.Service.RenderPreview(id, body.CustomerID, body.TemplateBody)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rendered_message": rendered,
		"customer_id":      body.CustomerID,
	})
}

func (h *CampaignHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	stats, err := h.Stats.GetStats(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ====================== helpers ======================

func campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		writeError(w, appErrors.NewValidation("id", "invalid campaign id"))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var notFound *appErrors.ErrCampaignNotFound
	var validation *appErrors.ValidationError
	var invalidState *appErrors.InvalidStateError
	var alreadyRunning *appErrors.ErrAlreadyRunning
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &invalidState), errors.As(err, &alreadyRunning):
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
