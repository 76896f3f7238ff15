// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/safarnama/backoffice/internal/config"
	"github.com/safarnama/backoffice/internal/db"
	"github.com/safarnama/backoffice/internal/handler"
	"github.com/safarnama/backoffice/internal/logger"
	"github.com/safarnama/backoffice/internal/queue"
	"github.com/safarnama/backoffice/internal/repository"
	"github.com/safarnama/backoffice/internal/service"
)

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

	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		CustomerRepo:  customerRepo,
		Queue:         q,
		Log:           log,
	}
	statsService := &service.StatsService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
	}
	webhookService := &service.WebhookService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		Log:           log,
	}

	campaignHandler := &handler.CampaignHandler{
		Service: campaignService,
		Stats:   statsService,
		Log:     log,
	}
	webhookHandler := &handler.WebhookHandler{
		Service: webhookService,
		Log:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Campaign routes
	r.Post("/campaigns", campaignHandler.CreateCampaign)
	r.Get("/campaigns", campaignHandler.ListCampaigns)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaign)
	r.Post("/campaigns/{id}/recipients", campaignHandler.AddRecipients)
	r.Delete("/campaigns/{id}/recipients", campaignHandler.RemoveRecipients)
	r.Get("/campaigns/{id}/recipients", campaignHandler.ListRecipients)
	r.Post("/campaigns/{id}/start", campaignHandler.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignHandler.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignHandler.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", campaignHandler.CancelCampaign)
	r.Post("/campaigns/{id}/personalized-preview", campaignHandler.PersonalizedPreview)
	r.Get("/campaigns/{id}/stats", campaignHandler.GetStats)

	// Gateway callbacks
	r.Post("/webhooks/status", webhookHandler.StatusEvent)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("🚀 Server running", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}
