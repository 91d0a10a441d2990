package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/config"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/database"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/handlers"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/middleware"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/repositories"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/scheduler"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/services"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/storage"
	"github.com/rscoe-coding-club/codigo-registration-backend/pkg/logger"
	"github.com/rscoe-coding-club/codigo-registration-backend/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.Logger.Level, cfg.Logger.Format)

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(&cfg.Database, appLogger); err != nil {
			appLogger.WithError(err).Fatal("Failed to run database migrations")
		}
	}

	// Connect to database with both roles
	pools, err := database.Open(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to database")
	}
	defer pools.Close()

	if cfg.Mail.User == "" || cfg.Mail.Password == "" {
		appLogger.Warn("EMAIL_USER or EMAIL_PASS not set; confirmation emails will fail")
	}

	// Initialize services
	store := repositories.NewRegistrationStore(pools.Public, pools.Privileged)

	objectStorage := storage.NewSupabaseStorage(storage.Config{
		BaseURL:        cfg.Storage.URL,
		AnonKey:        cfg.Storage.AnonKey,
		ServiceRoleKey: cfg.Storage.ServiceRoleKey,
		Bucket:         cfg.Storage.Bucket,
		CacheControl:   cfg.Storage.CacheControl,
		Timeout:        cfg.Storage.Timeout,
	}, appLogger)

	notifier := services.NewNotificationSender(services.NewSMTPMailer(cfg.Mail), cfg.Mail, appLogger)

	limiter := services.NewRateLimiter(
		store.Privileged(),
		cfg.Registration.MaxPerWindow,
		cfg.Registration.Window,
		appLogger,
	)

	intake := services.NewIntakeService(limiter, store.Public(), objectStorage, notifier, services.IntakeConfig{
		EventName:          cfg.Registration.EventName,
		MaxScreenshotBytes: cfg.Registration.MaxScreenshotBytes,
	}, appLogger)

	// Initialize scheduler
	if cfg.Sweep.Enabled {
		sweeper := services.NewOrphanSweeper(objectStorage, store.Privileged(), cfg.Sweep.GracePeriod, appLogger)
		cronScheduler := scheduler.NewCronScheduler(sweeper, cfg.Sweep.Schedule, cfg.Sweep.JobTimeout, appLogger)
		if err := cronScheduler.Start(); err != nil {
			appLogger.WithError(err).Fatal("Failed to start scheduler")
		}
		defer cronScheduler.Stop()
	}

	// Initialize HTTP handlers
	registrationHandler := handlers.NewRegistrationHandler(intake, cfg.Registration.MaxScreenshotBytes, appLogger)
	confirmationHandler := handlers.NewConfirmationHandler(notifier, appLogger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"public":     pools.Public,
		"privileged": pools.Privileged,
	}, appLogger, version)

	// Setup Gin router
	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	throttle := middleware.NewThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst, appLogger)
	defer throttle.Stop()

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(appLogger))
	router.Use(middleware.StructuredLogger(appLogger))
	router.Use(middleware.Metrics(metrics.NewMetrics()))
	router.Use(middleware.Security())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	handlers.RegisterRoutes(router, registrationHandler, confirmationHandler, healthHandler, metrics.Handler(), throttle.Middleware())

	// Start server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.WithField("addr", serverAddr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
