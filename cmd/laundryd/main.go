package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"laundry-session-backend/config"
	"laundry-session-backend/internal/api"
	"laundry-session-backend/internal/db"
	"laundry-session-backend/internal/laundry"
	"laundry-session-backend/internal/logging"
	"laundry-session-backend/internal/notification"
	"laundry-session-backend/internal/store"
	"laundry-session-backend/internal/verify"
)

func main() {
	logger := logging.Logger

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logging.Init(cfg.Log.Level)
	logger.Infof("configuration loaded from %s", configPath)

	gin.DefaultWriter = logger.Writer()

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var (
		webpushOptions *webpush.Options
		vacancy        laundry.VacancyDispatcher
	)
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions)
		pool.Start(ctx)
		vacancy = pool
		logger.Infof("vacancy alerts enabled with %d workers", cfg.WorkerPool.Size)
	} else {
		logger.Warn("VAPID keys are not configured; vacancy alerts are disabled")
	}

	svc := laundry.NewService(
		appStore,
		verify.NewGate(cfg.Laundry.SupervisorCode),
		notification.NewTwilioProvider(cfg.SMS),
		vacancy,
		laundry.Options{
			CycleDuration: cfg.Laundry.CycleDuration,
			GraceMinutes:  cfg.Laundry.GraceMinutes,
		},
	)

	router := api.NewRouter(api.NewHandler(svc, appStore, webpushOptions), cfg.Server)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	cancel()

	logger.Info("server gracefully stopped")
}
