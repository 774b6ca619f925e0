package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halvard/modelwatch/internal/api"
	"github.com/halvard/modelwatch/internal/api/middleware"
	"github.com/halvard/modelwatch/internal/config"
	"github.com/halvard/modelwatch/internal/extractor"
	"github.com/halvard/modelwatch/internal/logger"
	"github.com/halvard/modelwatch/internal/repository"
	"github.com/halvard/modelwatch/internal/service"
	"github.com/halvard/modelwatch/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	fileRepo := repository.NewFileRepository(db)
	changeLogRepo := repository.NewChangeLogRepository(db)
	runRepo := repository.NewRunRepository(db)
	valueRepo := repository.NewValueRepository(db)
	dealRepo := repository.NewDealRepository(db)

	// Initialize the remote model store (supports MinIO, R2, S3, local)
	store, err := storage.NewStore(&storage.FactoryConfig{
		Type:      cfg.Store.Type,
		Endpoint:  cfg.Store.Endpoint,
		AccessKey: cfg.Store.AccessKey,
		SecretKey: cfg.Store.SecretKey,
		UseSSL:    cfg.Store.UseSSL,
		Bucket:    cfg.Store.Bucket,
		Region:    cfg.Store.Region,
		LocalPath: cfg.Store.LocalPath,
		Timeout:   cfg.Store.Timeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize model store")
	}

	// Initialize the external extraction client
	ext := extractor.NewRemoteExtractor(&extractor.RemoteConfig{
		BaseURL: cfg.Extractor.BaseURL,
		APIKey:  cfg.Extractor.APIKey,
		Timeout: cfg.Extractor.Timeout,
	})

	// Initialize services
	detector := service.NewChangeDetector(valueRepo)

	extractionService := service.NewExtractionService(
		runRepo,
		valueRepo,
		fileRepo,
		store,
		ext,
		detector,
		dealRepo,
		appLogger,
		&service.ExtractionOptions{
			Workers: cfg.Extraction.Workers,
		},
	)

	monitor := service.NewFileMonitor(store, fileRepo, changeLogRepo, appLogger, service.MonitorConfig{
		RootPrefix:  cfg.Store.RootPrefix,
		AutoExtract: cfg.Monitor.AutoExtract,
	})
	monitor.SetRunStarter(extractionService)

	// Optional background poller
	var scheduler *service.MonitorScheduler
	if cfg.Monitor.SchedulerEnabled {
		scheduler = service.NewMonitorScheduler(monitor, cfg.Monitor.PollInterval, appLogger)
		scheduler.Start()
	}

	// Setup router
	router := api.SetupRouter(extractionService, monitor, fileRepo, appLogger, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
