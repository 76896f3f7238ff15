package handler

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/safarnama/backoffice/internal/model"
	"github.com/safarnama/backoffice/internal/repository"
	"github.com/safarnama/backoffice/internal/service"
)

type noopQueue struct{}

func (noopQueue) PublishDispatch(campaignID int) error { return nil }

func newTestRouter(t *testing.T) (*chi.Mux, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zaptest.NewLogger(t)
	campaignRepo := &repository.CampaignRepository{DB: db}
	recipientRepo := &repository.RecipientRepository{DB: db}
	customerRepo := &repository.CustomerRepository{DB: db}

	campaignHandler := &CampaignHandler{
		Service: &service.CampaignService{
			CampaignRepo:  campaignRepo,
			RecipientRepo: recipientRepo,
			CustomerRepo:  customerRepo,
			Queue:         noopQueue{},
			Log:           log,
		},
		Stats: &service.StatsService{
			CampaignRepo:  campaignRepo,
			RecipientRepo: recipientRepo,
		},
		Log: log,
	}
	webhookHandler := &WebhookHandler{
		Service: &service.WebhookService{
			CampaignRepo:  campaignRepo,
			RecipientRepo: recipientRepo,
			Log:           log,
		},
		Log: log,
	}

	r := chi.NewRouter()
	r.Post("/campaigns", campaignHandler.CreateCampaign)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaign)
	r.Post("/campaigns/{id}/start", campaignHandler.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignHandler.PauseCampaign)
	r.Post("/webhooks/status", webhookHandler.StatusEvent)
	return r, mock
}

func TestCreateCampaign_Created(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.ExpectQuery("INSERT INTO campaigns").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	req := httptest.NewRequest(http.MethodPost, "/campaigns",
		strings.NewReader(`{"name": "Promo", "template_name": "promo_discount", "rate_limit": 60}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id":5`)
	assert.Contains(t, w.Body.String(), `"status":"draft"`)
}

func TestCreateCampaign_ValidationFailure(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/campaigns",
		strings.NewReader(`{"template_name": "promo_discount"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "name")
}

func TestCreateCampaign_MalformedJSON(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(`{broken`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCampaign_NotFound(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id=").
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/campaigns/99", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCampaign_InvalidID(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/campaigns/abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartCampaign_ConflictWhenAlreadySending(t *testing.T) {
	r, mock := newTestRouter(t)

	rows := sqlmock.NewRows([]string{
		"id", "name", "template_name", "template_language", "template_vars", "audience",
		"rate_limit", "status", "total_recipients", "sent_count", "delivered_count", "read_count",
		"failed_count", "scheduled_for", "started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(1, "Promo", "promo_discount", "en", "{}", model.AudienceManual,
		60, model.CampaignSending, 3, 1, 0, 0, 0, nil, nil, nil, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id=").
		WithArgs(1).
		WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodPost, "/campaigns/1/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already sending")
}

func TestPauseCampaign_ConflictWhenNotSending(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.ExpectExec("UPDATE campaigns SET status=").
		WithArgs(model.CampaignPaused, 1, model.CampaignSending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{
		"id", "name", "template_name", "template_language", "template_vars", "audience",
		"rate_limit", "status", "total_recipients", "sent_count", "delivered_count", "read_count",
		"failed_count", "scheduled_for", "started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(1, "Promo", "promo_discount", "en", "{}", model.AudienceManual,
		60, model.CampaignDraft, 3, 0, 0, 0, 0, nil, nil, nil, time.Now(), nil)
	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id=").
		WithArgs(1).
		WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodPost, "/campaigns/1/pause", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWebhookStatusEvent_SentIsAcknowledged(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/status",
		strings.NewReader(`{"provider_message_id": "wamid.abc", "status": "sent"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookStatusEvent_UnknownStatusRejected(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/status",
		strings.NewReader(`{"provider_message_id": "wamid.abc", "status": "teleported"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
