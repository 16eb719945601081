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

	"github.com/olegk/qrsync/internal/api"
	"github.com/olegk/qrsync/internal/artifact"
	"github.com/olegk/qrsync/internal/catalog/inriver"
	"github.com/olegk/qrsync/internal/config"
	"github.com/olegk/qrsync/internal/logger"
	"github.com/olegk/qrsync/internal/repository"
	"github.com/olegk/qrsync/internal/service"
	"github.com/olegk/qrsync/internal/storage"
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
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	productRepo := repository.NewProductRepository(db)
	collectionRepo := repository.NewCollectionRepository(db)

	// Initialize storage (supports MinIO, R2, S3)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Ensure bucket exists
	ctx := context.Background()
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// Initialize catalog client
	catalogClient := inriver.NewClient(&inriver.Config{
		BaseURL:        cfg.InRiver.BaseURL,
		APIKey:         cfg.InRiver.APIKey,
		RequestTimeout: cfg.InRiver.RequestTimeout,
	})

	// Initialize artifact producer
	producer := artifact.NewRemoteProducer(&artifact.RemoteConfig{
		URL:            cfg.Render.URL,
		RequestTimeout: cfg.Render.RequestTimeout,
	}, objectStorage)

	// Initialize services
	processor := service.NewBatchProcessor(jobRepo, appLogger, cfg.Sync.Workers)

	reconcileService := service.NewReconcileService(
		productRepo,
		collectionRepo,
		catalogClient,
		processor,
		appLogger,
		service.ReconcileConfig{
			Group:            cfg.Sync.Group,
			FieldMap:         cfg.Sync.FieldMap,
			RedirectURL:      cfg.Sync.RedirectURL,
			ImageURLTemplate: cfg.Sync.ImageURLTemplate,
		},
	)

	generateService := service.NewGenerateService(
		productRepo,
		objectStorage,
		producer,
		processor,
		appLogger,
		service.GenerateConfig{
			Prefix: cfg.Storage.Prefix,
			Domain: cfg.Sync.Domain,
			Group:  cfg.Sync.Group,
		},
	)

	archiveService := service.NewArchiveService(
		productRepo,
		objectStorage,
		appLogger,
		service.ArchiveConfig{Prefix: cfg.Storage.Prefix},
	)

	// Setup router
	router := api.SetupRouter(api.Services{
		Jobs:      jobRepo,
		Products:  productRepo,
		Processor: processor,
		Reconcile: reconcileService,
		Generate:  generateService,
		Archive:   archiveService,
	}, cfg, appLogger)

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

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
