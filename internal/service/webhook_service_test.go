package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appErrors "github.com/safarnama/backoffice/internal/errors"
	"github.com/safarnama/backoffice/internal/model"
)

func newWebhookService(t *testing.T, campaigns *stubCampaignRepo, recipients *stubRecipientRepo) *WebhookService {
	return &WebhookService{
		CampaignRepo:  campaigns,
		RecipientRepo: recipients,
		Log:           zaptest.NewLogger(t),
	}
}

func TestHandleStatusEvent_AdvancesByProviderMessageID(t *testing.T) {
	campaigns := &stubCampaignRepo{}
	var advancedID int
	var advancedTo string
	recipients := &stubRecipientRepo{
		FindByProviderFn: func(pmid string) (*model.Recipient, error) {
			return &model.Recipient{ID: 7, CampaignID: 3, ProviderMessageID: pmid, Status: model.RecipientSent}, nil
		},
		AdvanceDeliveryFn: func(id int, target string, at time.Time) (bool, error) {
			advancedID, advancedTo = id, target
			return true, nil
		},
	}
	svc := newWebhookService(t, campaigns, recipients)

	err := svc.HandleStatusEvent(StatusEvent{
		ProviderMessageID: "wamid.abc",
		Status:            model.RecipientDelivered,
	})

	require.NoError(t, err)
	assert.Equal(t, 7, advancedID)
	assert.Equal(t, model.RecipientDelivered, advancedTo)
	assert.Equal(t, 1, campaigns.counterRefreshed)
}

func TestHandleStatusEvent_FallsBackToPhoneLookup(t *testing.T) {
	var lookedUp string
	recipients := &stubRecipientRepo{
		FindByPhoneFn: func(phone string) (*model.Recipient, error) {
			lookedUp = phone
			return &model.Recipient{ID: 7, CampaignID: 3, Status: model.RecipientSent}, nil
		},
	}
	svc := newWebhookService(t, &stubCampaignRepo{}, recipients)

	err := svc.HandleStatusEvent(StatusEvent{
		Phone:  "+254 712 345 001", // provider sends formatted numbers
		Status: model.RecipientRead,
	})

	require.NoError(t, err)
	assert.Equal(t, "+254712345001", lookedUp)
}

func TestHandleStatusEvent_DuplicateDoesNotRecount(t *testing.T) {
	campaigns := &stubCampaignRepo{}
	var advanced bool
	recipients := &stubRecipientRepo{
		FindByProviderFn: func(pmid string) (*model.Recipient, error) {
			return &model.Recipient{ID: 7, CampaignID: 3, Status: model.RecipientDelivered}, nil
		},
		AdvanceDeliveryFn: func(id int, target string, at time.Time) (bool, error) {
			advanced = true
			return false, nil
		},
	}
	svc := newWebhookService(t, campaigns, recipients)

	err := svc.HandleStatusEvent(StatusEvent{
		ProviderMessageID: "wamid.abc",
		Status:            model.RecipientDelivered,
	})

	require.NoError(t, err)
	assert.False(t, advanced, "row already at delivered, nothing to write")
	assert.Equal(t, 0, campaigns.counterRefreshed)
}

func TestHandleStatusEvent_LateReceiptDoesNotRegress(t *testing.T) {
	campaigns := &stubCampaignRepo{}
	var advanced bool
	recipients := &stubRecipientRepo{
		FindByProviderFn: func(pmid string) (*model.Recipient, error) {
			return &model.Recipient{ID: 7, CampaignID: 3, Status: model.RecipientResponded}, nil
		},
		AdvanceDeliveryFn: func(id int, target string, at time.Time) (bool, error) {
			advanced = true
			return false, nil
		},
	}
	svc := newWebhookService(t, campaigns, recipients)

	// Provider delivers receipts out of order: a delivered event arrives
	// after the response was already recorded.
	err := svc.HandleStatusEvent(StatusEvent{
		ProviderMessageID: "wamid.abc",
		Status:            model.RecipientDelivered,
	})

	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, 0, campaigns.counterRefreshed)
}

func TestHandleStatusEvent_SentIsNoop(t *testing.T) {
	var advanced bool
	recipients := &stubRecipientRepo{
		AdvanceDeliveryFn: func(id int, target string, at time.Time) (bool, error) {
			advanced = true
			return true, nil
		},
	}
	svc := newWebhookService(t, &stubCampaignRepo{}, recipients)

	err := svc.HandleStatusEvent(StatusEvent{ProviderMessageID: "wamid.abc", Status: model.RecipientSent})

	require.NoError(t, err)
	assert.False(t, advanced)
}

func TestHandleStatusEvent_UnknownStatus(t *testing.T) {
	svc := newWebhookService(t, &stubCampaignRepo{}, &stubRecipientRepo{})

	err := svc.HandleStatusEvent(StatusEvent{ProviderMessageID: "wamid.abc", Status: "vanished"})

	var validation *appErrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestHandleStatusEvent_NoRecipientKey(t *testing.T) {
	svc := newWebhookService(t, &stubCampaignRepo{}, &stubRecipientRepo{})

	err := svc.HandleStatusEvent(StatusEvent{Status: model.RecipientDelivered})

	var validation *appErrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestHandleStatusEvent_UnknownRecipientAbsorbed(t *testing.T) {
	svc := newWebhookService(t, &stubCampaignRepo{}, &stubRecipientRepo{})

	err := svc.HandleStatusEvent(StatusEvent{
		ProviderMessageID: "wamid.stray",
		Status:            model.RecipientResponded,
	})

	assert.NoError(t, err)
}

func TestHandleStatusEvent_UsesEventTimestamp(t *testing.T) {
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	var gotAt time.Time
	recipients := &stubRecipientRepo{
		FindByProviderFn: func(pmid string) (*model.Recipient, error) {
			return &model.Recipient{ID: 7, CampaignID: 3}, nil
		},
		AdvanceDeliveryFn: func(id int, target string, at time.Time) (bool, error) {
			gotAt = at
			return true, nil
		},
	}
	svc := newWebhookService(t, &stubCampaignRepo{}, recipients)

	err := svc.HandleStatusEvent(StatusEvent{
		ProviderMessageID: "wamid.abc",
		Status:            model.RecipientDelivered,
		Timestamp:         &ts,
	})

	require.NoError(t, err)
	assert.Equal(t, ts, gotAt)
}
