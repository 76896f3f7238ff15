// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/safarnama/backoffice/internal/gateway"
	"github.com/safarnama/backoffice/internal/metrics"
	"github.com/safarnama/backoffice/internal/model"
	"github.com/safarnama/backoffice/internal/ratelimit"
)

// CampaignStore is the slice of the campaign repository the send loop needs.
type CampaignStore interface {
	GetByID(id int) (*model.Campaign, error)
	Finalize(campaignID int, status string) (bool, error)
	UpdateCounters(campaignID int) error
}

// RecipientStore is the slice of the recipient repository the send loop needs.
// Every write is a per-row conditional update, so no cross-recipient
// transaction is required.
type RecipientStore interface {
	NextEligible(campaignID int, backoffBase time.Duration) (*model.Recipient, error)
	ClaimSending(id int) (bool, error)
	MarkSent(id int, providerMessageID string) error
	MarkRetry(id int, errorCode, errorMessage string) error
	MarkFailed(id int, errorCode, errorMessage string) error
	MarkOptedOut(id int) error
	CountByStatus(campaignID int) (map[string]int, error)
}

// OptOutChecker answers the pre-send opt-out check.
type OptOutChecker interface {
	IsOptedOut(phone string) (bool, error)
}

type Config struct {
	MaxRetries       int
	BackoffBase      time.Duration
	PollInterval     time.Duration
	DefaultRateLimit int // messages per minute
}

// Dispatcher runs one send loop per actively-sending campaign. Gateway and
// store faults never abort the loop; they are recorded per recipient and the
// loop moves on.
type Dispatcher struct {
	Campaigns  CampaignStore
	Recipients RecipientStore
	OptOuts    OptOutChecker
	Gateway    gateway.Client
	Limits     *ratelimit.Registry
	Cfg        Config
	Log        *zap.Logger
}

// Run drives the campaign until it completes, is paused/cancelled, or ctx is
// done. The campaign must already be in sending status (the status CAS at
// start time is the single-flight guard), so Run exits immediately otherwise.
func (d *Dispatcher) Run(ctx context.Context, campaignID int) error {
	camp, err := d.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if camp.Status != model.CampaignSending {
		d.Log.Debug("campaign not in sending status, skipping dispatch",
			zap.Int("campaign_id", campaignID), zap.String("status", camp.Status))
		return nil
	}

	metrics.ActiveDispatchers.Inc()
	defer metrics.ActiveDispatchers.Dec()

	perMinute := camp.RateLimit
	if perMinute <= 0 {
		perMinute = d.Cfg.DefaultRateLimit
	}
	limiter := d.Limits.ForCampaign(campaignID, perMinute)

	d.Log.Info("dispatch started",
		zap.Int("campaign_id", campaignID),
		zap.Int("total_recipients", camp.TotalRecipients),
		zap.Int("rate_per_minute", perMinute),
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Cooperative pause/cancel: re-read status at each iteration
		// boundary, after the in-flight send has been recorded.
		camp, err = d.Campaigns.GetByID(campaignID)
		if err != nil {
			d.Log.Error("failed to reload campaign", zap.Int("campaign_id", campaignID), zap.Error(err))
			if !d.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		if camp.Status != model.CampaignSending {
			d.Log.Info("dispatch stopped", zap.Int("campaign_id", campaignID), zap.String("status", camp.Status))
			if camp.IsTerminal() {
				d.Limits.Release(campaignID)
			}
			return nil
		}

		rec, err := d.Recipients.NextEligible(campaignID, d.Cfg.BackoffBase)
		if err != nil {
			d.Log.Error("failed to fetch eligible recipient", zap.Int("campaign_id", campaignID), zap.Error(err))
			if !d.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		if rec == nil {
			done, err := d.maybeFinalize(campaignID)
			if err != nil {
				d.Log.Error("failed to finalize campaign", zap.Int("campaign_id", campaignID), zap.Error(err))
			}
			if done {
				return nil
			}
			// Retries may become eligible shortly; poll again.
			if !d.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		claimed, err := d.Recipients.ClaimSending(rec.ID)
		if err != nil {
			d.Log.Error("failed to claim recipient", zap.Int("recipient_id", rec.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		d.process(ctx, camp, rec)

		if err := d.Campaigns.UpdateCounters(campaignID); err != nil {
			d.Log.Warn("failed to refresh campaign counters", zap.Int("campaign_id", campaignID), zap.Error(err))
		}
	}
}

// process sends one message and records the outcome. The status write is the
// atomic unit: it happens immediately after the gateway call returns.
func (d *Dispatcher) process(ctx context.Context, camp *model.Campaign, rec *model.Recipient) {
	optedOut, err := d.OptOuts.IsOptedOut(rec.Phone)
	if err != nil {
		d.Log.Warn("opt-out lookup failed", zap.String("phone", rec.Phone), zap.Error(err))
	}
	if optedOut {
		d.record(rec, d.Recipients.MarkOptedOut(rec.ID), model.RecipientOptedOut)
		return
	}

	vars := model.MergeVariables(camp.TemplateVars, rec.Variables)

	start := time.Now()
	res, err := d.Gateway.Send(ctx, rec.Phone, camp.TemplateName, camp.TemplateLanguage, vars)
	metrics.SendDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		// Transport-level fault, indeterminate whether the message left.
		res = &gateway.SendResult{ErrorCode: gateway.CodeUnavailable, ErrorMessage: err.Error()}
	}

	if res.Success {
		d.record(rec, d.Recipients.MarkSent(rec.ID, res.ProviderMessageID), model.RecipientSent)
		return
	}

	switch gateway.Classify(res.ErrorCode) {
	case gateway.KindOptOut:
		d.record(rec, d.Recipients.MarkOptedOut(rec.ID), model.RecipientOptedOut)
	case gateway.KindPermanent:
		d.record(rec, d.Recipients.MarkFailed(rec.ID, res.ErrorCode, res.ErrorMessage), model.RecipientFailed)
	default: // transient
		if rec.RetryCount >= d.Cfg.MaxRetries {
			d.record(rec, d.Recipients.MarkFailed(rec.ID, res.ErrorCode, res.ErrorMessage), model.RecipientFailed)
			return
		}
		metrics.RetriesTotal.Inc()
		d.record(rec, d.Recipients.MarkRetry(rec.ID, res.ErrorCode, res.ErrorMessage), model.RecipientRetry)
	}
}

func (d *Dispatcher) record(rec *model.Recipient, writeErr error, outcome string) {
	if writeErr != nil {
		// The recipient stays in sending; the staleness sweep resets it
		// to retry so the send is not lost.
		d.Log.Error("failed to persist recipient status",
			zap.Int("recipient_id", rec.ID),
			zap.String("outcome", outcome),
			zap.Error(writeErr),
		)
		return
	}
	metrics.SendsTotal.WithLabelValues(outcome).Inc()
	d.Log.Debug("recipient processed",
		zap.Int("recipient_id", rec.ID),
		zap.String("phone", rec.Phone),
		zap.String("outcome", outcome),
		zap.Int("retry_count", rec.RetryCount),
	)
}

// maybeFinalize completes the campaign when nothing is pending, in retry, or
// in flight. A campaign where every recipient failed finishes as failed.
func (d *Dispatcher) maybeFinalize(campaignID int) (bool, error) {
	counts, err := d.Recipients.CountByStatus(campaignID)
	if err != nil {
		return false, err
	}
	active := counts[model.RecipientPending] + counts[model.RecipientRetry] + counts[model.RecipientSending]
	if active > 0 {
		return false, nil
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	status := model.CampaignCompleted
	if total > 0 && counts[model.RecipientFailed] == total {
		status = model.CampaignFailed
	}

	ok, err := d.Campaigns.Finalize(campaignID, status)
	if err != nil {
		return false, err
	}
	if ok {
		d.Log.Info("campaign finished", zap.Int("campaign_id", campaignID), zap.String("status", status))
	}
	if err := d.Campaigns.UpdateCounters(campaignID); err != nil {
		d.Log.Warn("failed to refresh campaign counters", zap.Int("campaign_id", campaignID), zap.Error(err))
	}
	d.Limits.Release(campaignID)
	return true, nil
}

func (d *Dispatcher) sleep(ctx context.Context) bool {
	t := time.NewTimer(d.Cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
