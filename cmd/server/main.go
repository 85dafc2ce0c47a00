package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"habitpoints/internal/archive"
	"habitpoints/internal/config"
	"habitpoints/internal/database"
	"habitpoints/internal/handlers"
	"habitpoints/internal/metrics"
	"habitpoints/internal/remote"
	"habitpoints/internal/repository"
	"habitpoints/internal/scheduler"
	"habitpoints/internal/security"
	"habitpoints/internal/service"
	"habitpoints/pkg/logger"
)

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	// Initialize database with config (supports sqlite, postgres, mysql)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.WithField("type", cfg.DatabaseType).Info("Database connection established")

	applied, err := db.RunMigrations(ctx)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.WithField("applied", applied).Info("Migrations completed successfully")

	recorder := metrics.NewRecorder(nil)
	docs := repository.NewDocumentRepository(db, cfg.MaxDocumentBytes)
	store := service.NewStore(docs, log, service.WithMetrics(recorder))

	var (
		app    handlers.AppStore = store
		hybrid handlers.HybridControl
		coord  *service.Coordinator
	)
	if cfg.IsHybrid() {
		client, err := remote.NewClient(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.RequestTimeout)
		if err != nil {
			log.Fatalf("Failed to create remote client: %v", err)
		}
		coord = service.NewCoordinator(store, client, log, service.CoordinatorConfig{
			ProbeTimeout:   cfg.Remote.ProbeTimeout,
			RequestTimeout: cfg.Remote.RequestTimeout,
			OutboxSize:     cfg.Remote.OutboxSize,
		})
		if err := coord.Start(ctx); err != nil {
			log.Fatalf("Failed to start coordinator: %v", err)
		}
		defer coord.Close()
		app, hybrid = coord, coord
		log.WithField("state", coord.State()).Info("Hybrid storage ready")
	} else {
		store.Load(ctx)
		log.Info("Local storage ready")
	}

	// Background jobs
	sched, err := scheduler.New(log)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	if coord != nil {
		if err := sched.AddProbeJob(coord, cfg.Remote.ProbeInterval); err != nil {
			log.Fatalf("Failed to schedule connectivity probe: %v", err)
		}
	}
	sink, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		log.Fatalf("Failed to create archive sink: %v", err)
	}
	if sink != nil {
		if err := sched.AddArchiveJob(app, sink, cfg.Archive.Interval); err != nil {
			log.Fatalf("Failed to schedule archive job: %v", err)
		}
	}
	sched.Start()

	limiter := security.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	defer limiter.Stop()

	api := handlers.NewAPIHandler(app, hybrid, log)
	middleware := handlers.NewMiddleware(limiter, log)
	handler := handlers.NewRouter(api, middleware, recorder.Handler())

	// Start server
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := sched.Shutdown(); err != nil {
		log.WithError(err).Error("Scheduler shutdown failed")
	}
}
