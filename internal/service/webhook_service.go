// internal/service/webhook_service.go
package service

import (
	"time"

	"go.uber.org/zap"

	appErrors "github.com/safarnama/backoffice/internal/errors"
	"github.com/safarnama/backoffice/internal/metrics"
	"github.com/safarnama/backoffice/internal/model"
	"github.com/safarnama/backoffice/internal/repository"
)

// StatusEvent is one asynchronous receipt from the gateway, keyed by provider
// message id with a phone-number fallback.
type StatusEvent struct {
	ProviderMessageID string     `json:"provider_message_id"`
	Phone             string     `json:"phone"`
	Status            string     `json:"status"` // delivered, read, responded
	Timestamp         *time.Time `json:"timestamp"`
}

type WebhookService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	Log           *zap.Logger
}

// HandleStatusEvent applies one guarded forward-only transition. Duplicate
// deliveries of the same event match zero rows on the second apply, so
// nothing regresses or double-counts.
func (s *WebhookService) HandleStatusEvent(ev StatusEvent) error {
	switch ev.Status {
	case model.RecipientDelivered, model.RecipientRead, model.RecipientResponded:
	case model.RecipientSent:
		// The send loop already recorded the synchronous gateway ack.
		return nil
	default:
		return appErrors.NewValidation("status", "unknown status event")
	}
	if ev.ProviderMessageID == "" && ev.Phone == "" {
		return appErrors.NewValidation("provider_message_id", "event carries no recipient key")
	}

	rec, err := s.findRecipient(ev)
	if err != nil {
		return err
	}
	if rec == nil {
		// Receipts can outlive their campaign (recipients removed in draft,
		// stray provider events). Absorb them.
		s.Log.Debug("status event for unknown recipient",
			zap.String("provider_message_id", ev.ProviderMessageID),
			zap.String("phone", ev.Phone),
			zap.String("status", ev.Status),
		)
		return nil
	}

	if model.DeliveryRank(ev.Status) <= model.DeliveryRank(rec.Status) {
		// Duplicate or late receipt; the row is already at or past this
		// status. The SQL guard below would match zero rows anyway, this
		// just skips the write for the common case.
		s.Log.Debug("status event already applied",
			zap.Int("recipient_id", rec.ID),
			zap.String("status", ev.Status),
			zap.String("current", rec.Status),
		)
		return nil
	}

	at := time.Now()
	if ev.Timestamp != nil {
		at = *ev.Timestamp
	}

	advanced, err := s.RecipientRepo.AdvanceDelivery(rec.ID, ev.Status, at)
	if err != nil {
		return err
	}
	metrics.WebhookEvents.WithLabelValues(ev.Status).Inc()
	if advanced {
		if err := s.CampaignRepo.UpdateCounters(rec.CampaignID); err != nil {
			s.Log.Warn("failed to refresh campaign counters",
				zap.Int("campaign_id", rec.CampaignID), zap.Error(err))
		}
	}
	return nil
}

func (s *WebhookService) findRecipient(ev StatusEvent) (*model.Recipient, error) {
	if ev.ProviderMessageID != "" {
		rec, err := s.RecipientRepo.FindByProviderMessageID(ev.ProviderMessageID)
		if rec != nil || err != nil {
			return rec, err
		}
	}
	if ev.Phone != "" {
		if phone, ok := NormalizePhone(ev.Phone); ok {
			return s.RecipientRepo.FindLatestByPhone(phone)
		}
	}
	return nil, nil
}
