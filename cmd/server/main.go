package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"figurineForge/artifact"
	"figurineForge/cache"
	"figurineForge/config"
	"figurineForge/database"
	"figurineForge/events"
	"figurineForge/handlers"
	"figurineForge/meshy"
	"figurineForge/middleware"
	"figurineForge/poller"
	"figurineForge/reconcile"
	"figurineForge/repository"
	"figurineForge/service"
)

func main() {
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	if cfg.Env == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	logger.Info("figurineForge starting", zap.String("port", cfg.Port))

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Postgres connection failed", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("Redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(redisClient)

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		p, err := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Warn("Kafka unavailable, task events disabled", zap.Error(err))
		} else {
			publisher = p
			defer p.Close()
		}
	}

	vendor := meshy.NewClient(cfg.VendorBaseURL, cfg.VendorAPIKey, cfg.HTTPTimeout, logger)
	artifacts := artifact.NewStore(cfg.StorageRoot, cfg.PublicBaseURL, cfg.HTTPTimeout, logger)
	reconciler := reconcile.NewReconciler(repo, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskPoller := poller.New(vendor, repo, statusCache, artifacts, reconciler, publisher,
		cfg.PollInterval, cfg.PollMaxAttempts, logger)
	registry := poller.NewRegistry(ctx, taskPoller, logger)

	submitter := service.NewSubmitter(vendor, repo, statusCache, publisher, logger)
	statusService := service.NewStatusService(repo, statusCache)
	taskHandler := handlers.NewTaskHandler(submitter, statusService, registry, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		taskHandler.Create(w, r)
	})
	mux.HandleFunc("/tasks/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		taskHandler.Status(w, r)
	})
	mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.StorageRoot))))

	handler := middleware.TraceID(middleware.Logging(logger)(middleware.Recovery(logger)(mux)))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Server started", zap.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", zap.Error(err))
	}

	registry.Shutdown()
	logger.Info("Server stopped")
}
