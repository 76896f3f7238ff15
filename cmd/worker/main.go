// cmd/worker/main.go
package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/safarnama/backoffice/internal/config"
	"github.com/safarnama/backoffice/internal/db"
	"github.com/safarnama/backoffice/internal/dispatcher"
	"github.com/safarnama/backoffice/internal/gateway"
	"github.com/safarnama/backoffice/internal/logger"
	"github.com/safarnama/backoffice/internal/model"
	"github.com/safarnama/backoffice/internal/queue"
	"github.com/safarnama/backoffice/internal/ratelimit"
	"github.com/safarnama/backoffice/internal/repository"
)

// The worker only needs a sliver of each collaborator, so it names the
// slivers itself; the repository and dispatcher types satisfy these.
type campaignStore interface {
	GetByID(id int) (*model.Campaign, error)
	MarkSending(id int) (bool, error)
	ListDueScheduled(now time.Time) ([]int, error)
	ListStuckSending(olderThan time.Duration) ([]int, error)
}

type recipientStore interface {
	ResetStaleSending(olderThan time.Duration) (int64, error)
}

type dispatchRunner interface {
	Run(ctx context.Context, campaignID int) error
}

type publisher interface {
	PublishDispatch(campaignID int) error
}

// worker consumes dispatch jobs and drives one send loop per campaign.
// A local map keeps one loop per campaign id within this process; across
// processes the campaign status CAS is the guard.
type worker struct {
	campaigns  campaignStore
	recipients recipientStore
	runner     dispatchRunner
	queue      publisher
	log        *zap.Logger
	cfg        *config.Config

	mu     sync.Mutex
	active map[int]bool
	wg     sync.WaitGroup
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	database, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("failed to connect to DB", zap.Error(err))
	}
	defer database.Close()

	q, err := queue.Dial(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer q.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	recipientRepo := &repository.RecipientRepository{DB: database}
	customerRepo := &repository.CustomerRepository{DB: database}

	var client gateway.Client
	switch cfg.Gateway.Mode {
	case "cloud":
		client = gateway.NewCloudClient(cfg.Gateway, log)
	default:
		client = gateway.NewFlaky(0.9)
		log.Info("using mock gateway")
	}

	d := &dispatcher.Dispatcher{
		Campaigns:  campaignRepo,
		Recipients: recipientRepo,
		OptOuts:    customerRepo,
		Gateway:    client,
		Limits:     ratelimit.NewRegistry(),
		Cfg: dispatcher.Config{
			MaxRetries:       cfg.MaxRetries,
			BackoffBase:      cfg.RetryBackoffBase,
			PollInterval:     cfg.PollInterval,
			DefaultRateLimit: cfg.DefaultRateLimit,
		},
		Log: log,
	}

	w := &worker{
		campaigns:  campaignRepo,
		recipients: recipientRepo,
		runner:     d,
		queue:      q,
		log:        log,
		cfg:        cfg,
		active:     make(map[int]bool),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The dispatch counters live in this process, so it exposes its own
	// scrape endpoint.
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler()}
	go func() {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	// Pick up work abandoned by a previous crash before consuming new jobs.
	w.recover()

	c := cron.New()
	c.AddFunc("* * * * *", func() { w.startDueScheduled() })
	c.AddFunc("*/5 * * * *", func() { w.recover() })
	c.Start()
	defer c.Stop()

	log.Info("Worker running, waiting for dispatch jobs...")
	if err := q.Consume(ctx, func(campaignID int) error {
		return w.handleDispatch(ctx, campaignID)
	}); err != nil && ctx.Err() == nil {
		log.Error("consumer stopped", zap.Error(err))
	}

	w.wg.Wait()

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutCtx)

	log.Info("worker stopped")
}

// metricsHandler serves the Prometheus registry under /metrics.
func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// handleDispatch spawns the send loop for a campaign that is ready to send.
// Jobs for campaigns not in sending status are acked and dropped; the one
// that moved the status owns the dispatch. The loop inherits ctx so a
// shutdown signal stops it mid-campaign; the recovery sweep finishes the
// rest later.
func (w *worker) handleDispatch(ctx context.Context, campaignID int) error {
	camp, err := w.campaigns.GetByID(campaignID)
	if err != nil {
		w.log.Warn("dispatch job for unknown campaign", zap.Int("campaign_id", campaignID), zap.Error(err))
		return nil
	}
	if camp.Status != model.CampaignSending {
		w.log.Info("skipping dispatch, campaign not sending",
			zap.Int("campaign_id", campaignID),
			zap.String("status", camp.Status))
		return nil
	}

	w.mu.Lock()
	if w.active[campaignID] {
		w.mu.Unlock()
		return nil
	}
	w.active[campaignID] = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.active, campaignID)
			w.mu.Unlock()
		}()
		if err := w.runner.Run(ctx, campaignID); err != nil {
			w.log.Error("dispatch loop stopped", zap.Int("campaign_id", campaignID), zap.Error(err))
		}
	}()
	return nil
}

// startDueScheduled promotes scheduled campaigns whose time has come.
func (w *worker) startDueScheduled() {
	ids, err := w.campaigns.ListDueScheduled(time.Now().UTC())
	if err != nil {
		w.log.Error("failed to list due campaigns", zap.Error(err))
		return
	}
	for _, id := range ids {
		ok, err := w.campaigns.MarkSending(id)
		if err != nil {
			w.log.Error("failed to start scheduled campaign", zap.Int("campaign_id", id), zap.Error(err))
			continue
		}
		if !ok {
			continue // someone else got there first
		}
		w.log.Info("starting scheduled campaign", zap.Int("campaign_id", id))
		if err := w.queue.PublishDispatch(id); err != nil {
			w.log.Error("failed to publish dispatch", zap.Int("campaign_id", id), zap.Error(err))
		}
	}
}

// recover resets recipients stuck in sending and re-publishes campaigns
// whose dispatch loop died with the status still at sending.
func (w *worker) recover() {
	n, err := w.recipients.ResetStaleSending(w.cfg.StaleSendingAfter)
	if err != nil {
		w.log.Error("failed to reset stale recipients", zap.Error(err))
	} else if n > 0 {
		w.log.Info("reset stale sending recipients", zap.Int64("count", n))
	}

	ids, err := w.campaigns.ListStuckSending(w.cfg.StaleSendingAfter)
	if err != nil {
		w.log.Error("failed to list stuck campaigns", zap.Error(err))
		return
	}
	for _, id := range ids {
		w.mu.Lock()
		running := w.active[id]
		w.mu.Unlock()
		if running {
			continue
		}
		w.log.Info("re-dispatching stuck campaign", zap.Int("campaign_id", id))
		if err := w.queue.PublishDispatch(id); err != nil {
			w.log.Error("failed to publish dispatch", zap.Int("campaign_id", id), zap.Error(err))
		}
	}
}
