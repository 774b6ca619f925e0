package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halvard/modelwatch/internal/config"
	"github.com/halvard/modelwatch/internal/domain"
	"github.com/halvard/modelwatch/internal/extractor"
	"github.com/halvard/modelwatch/internal/logger"
	"github.com/halvard/modelwatch/internal/repository"
	"github.com/halvard/modelwatch/internal/service"
	"github.com/halvard/modelwatch/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "modelwatch-extract",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	checkOnly := flag.Bool("check-only", false, "Detect changes without starting an extraction run")
	resumeRun := flag.String("resume", "", "Resume an interrupted run by ID instead of starting a new one")
	scope := flag.String("scope", "", "Scope label for the extraction run")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

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

	// Initialize the remote model store
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

	// Initialize services
	ext := extractor.NewRemoteExtractor(&extractor.RemoteConfig{
		BaseURL: cfg.Extractor.BaseURL,
		APIKey:  cfg.Extractor.APIKey,
		Timeout: cfg.Extractor.Timeout,
	})

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
		RootPrefix: cfg.Store.RootPrefix,
	})

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if *resumeRun != "" {
		run, err := extractionService.Resume(ctx, *resumeRun)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to resume extraction run")
		}
		waitForRun(ctx, extractionService, run.ID, appLogger)
		return
	}

	// Detect changes against the persisted file state
	result, err := monitor.CheckForChanges(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Change check failed")
	}
	appLogger.WithFields(logger.Fields{
		"added":    result.FilesAdded,
		"modified": result.FilesModified,
		"deleted":  result.FilesDeleted,
	}).Info("Change check completed")

	if *checkOnly {
		return
	}

	run, err := extractionService.StartRun(ctx, domain.TriggerManual, *scope)
	if err != nil {
		if errors.Is(err, service.ErrRunActive) {
			appLogger.WithError(err).Fatal("Another run is already active")
		}
		appLogger.WithError(err).Fatal("Failed to start extraction run")
	}
	waitForRun(ctx, extractionService, run.ID, appLogger)
}

// waitForRun polls run status until it reaches a terminal state.
func waitForRun(ctx context.Context, extractions *service.ExtractionService, runID string, log *logger.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := extractions.Cancel(context.Background(), runID); err != nil {
				log.WithError(err).Error("Failed to cancel run on shutdown")
			}
			log.WithField(logger.FieldRunID, runID).Info("Run flagged for cancellation, exiting")
			return
		case <-ticker.C:
			info, err := extractions.GetStatus(ctx, runID)
			if err != nil {
				log.WithError(err).Error("Failed to poll run status")
				continue
			}
			if info.Status == domain.RunStatusRunning {
				continue
			}
			log.WithFields(logger.Fields{
				logger.FieldRunID: runID,
				"status":          string(info.Status),
				"processed":       info.FilesProcessed,
				"failed":          info.FilesFailed,
				"skipped":         info.FilesSkipped,
			}).Info("Extraction run finished")
			return
		}
	}
}
