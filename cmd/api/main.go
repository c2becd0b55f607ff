package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	complaintHandler "github.com/careloop/consult-api/internal/handler/complaint"
	consultationHandler "github.com/careloop/consult-api/internal/handler/consultation"
	healthHandler "github.com/careloop/consult-api/internal/handler/health"
	notificationHandler "github.com/careloop/consult-api/internal/handler/notification"

	"github.com/careloop/consult-api/internal/config"
	"github.com/careloop/consult-api/internal/middleware"
	"github.com/careloop/consult-api/internal/repository/postgres"
	"github.com/careloop/consult-api/internal/router"
	consultationService "github.com/careloop/consult-api/internal/service/consultation"
	matchingService "github.com/careloop/consult-api/internal/service/matching"
	moderationService "github.com/careloop/consult-api/internal/service/moderation"
	notificationService "github.com/careloop/consult-api/internal/service/notification"
	"github.com/careloop/consult-api/pkg/auth"
	"github.com/careloop/consult-api/pkg/logger"
	"github.com/careloop/consult-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	consultationRepo := postgres.NewConsultationRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	complaintRepo := postgres.NewComplaintRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	healthProfiles := postgres.NewHealthProfileReader(db)

	registry := prometheus.NewRegistry()
	m := metrics.New("consult_api")
	m.Register(registry)

	notifier := notificationService.NewService(notificationRepo, outboxRepo, appLogger, m)
	matcher := matchingService.NewService(doctorRepo, consultationRepo)
	scheduler := consultationService.NewService(
		consultationRepo,
		doctorRepo,
		patientRepo,
		healthProfiles,
		matcher,
		notifier,
		appLogger,
		m,
	)
	moderator := moderationService.NewService(
		complaintRepo,
		consultationRepo,
		doctorRepo,
		scheduler,
		matcher,
		notifier,
		appLogger,
	)

	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Expiry())
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	healthH := healthHandler.NewHandler(map[string]healthHandler.Checker{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	})

	r := router.New(
		authMiddleware,
		healthH,
		registry,
		router.Config{
			RateLimit:  rate.Limit(cfg.Rate.RequestsPerSecond),
			RateBurst:  cfg.Rate.Burst,
			CORSConfig: middleware.DefaultCORSConfig(),
			Timeout:    cfg.Server.Timeout(),
		},
		consultationHandler.NewHandler(scheduler),
		notificationHandler.NewHandler(notifier),
		complaintHandler.NewHandler(moderator),
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
