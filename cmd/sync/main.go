package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/olegk/qrsync/internal/artifact"
	"github.com/olegk/qrsync/internal/catalog/inriver"
	"github.com/olegk/qrsync/internal/config"
	"github.com/olegk/qrsync/internal/logger"
	"github.com/olegk/qrsync/internal/repository"
	"github.com/olegk/qrsync/internal/service"
	"github.com/olegk/qrsync/internal/storage"
)

func main() {
	var (
		configPath      = flag.String("config", "", "Path to config file")
		ids             = flag.String("ids", "", "Comma-separated entity ids to reconcile")
		all             = flag.Bool("all", false, "Reconcile every entity in the stored collections")
		generate        = flag.Bool("generate", false, "Generate QR artifacts instead of reconciling")
		onlyMissing     = flag.Bool("only-missing", false, "Generate only for products without artifacts")
		includeBarcode  = flag.Bool("include-barcode", false, "Render the barcode as text on generated artifacts")
		domain          = flag.String("domain", "", "Override the link host embedded in generated codes")
		loadCollections = flag.String("load-collections", "", "Replace stored collection codes from a file, one code per line")
	)
	flag.Parse()

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	jobRepo := repository.NewJobRepository(db)
	productRepo := repository.NewProductRepository(db)
	collectionRepo := repository.NewCollectionRepository(db)

	// Cancel the run on SIGINT/SIGTERM; the batch stops between items.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *loadCollections != "" {
		collectionService := service.NewCollectionService(collectionRepo, appLogger)
		count, err := collectionService.ReplaceFromFile(ctx, *loadCollections)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to load collections")
		}
		fmt.Printf("Loaded %d collection codes\n", count)
		return
	}

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
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	processor := service.NewBatchProcessor(jobRepo, appLogger, cfg.Sync.Workers)
	jobID := uuid.New().String()
	ctx = logger.SetJobID(ctx, jobID)

	var summary *service.Summary
	switch {
	case *generate:
		producer := artifact.NewRemoteProducer(&artifact.RemoteConfig{
			URL:            cfg.Render.URL,
			RequestTimeout: cfg.Render.RequestTimeout,
		}, objectStorage)
		generateService := service.NewGenerateService(
			productRepo, objectStorage, producer, processor, appLogger,
			service.GenerateConfig{
				Prefix: cfg.Storage.Prefix,
				Domain: cfg.Sync.Domain,
				Group:  cfg.Sync.Group,
			},
		)
		opts := service.GenerateOptions{
			IncludeBarcode: *includeBarcode,
			Domain:         *domain,
		}
		if *ids != "" {
			summary, err = generateService.GenerateForProducts(ctx, jobID, splitIDs(*ids), opts)
		} else {
			filter := repository.ListFilter{WithoutArtifacts: *onlyMissing}
			summary, err = generateService.GenerateAll(ctx, jobID, filter, opts)
		}

	case *ids != "" || *all:
		catalogClient := inriver.NewClient(&inriver.Config{
			BaseURL:        cfg.InRiver.BaseURL,
			APIKey:         cfg.InRiver.APIKey,
			RequestTimeout: cfg.InRiver.RequestTimeout,
		})
		reconcileService := service.NewReconcileService(
			productRepo, collectionRepo, catalogClient, processor, appLogger,
			service.ReconcileConfig{
				Group:            cfg.Sync.Group,
				FieldMap:         cfg.Sync.FieldMap,
				RedirectURL:      cfg.Sync.RedirectURL,
				ImageURLTemplate: cfg.Sync.ImageURLTemplate,
			},
		)
		if *ids != "" {
			summary, err = reconcileService.SyncIDs(ctx, jobID, splitIDs(*ids))
		} else {
			summary, err = reconcileService.SyncAll(ctx, jobID)
		}

	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		appLogger.WithError(err).Fatal("Run failed")
	}

	fmt.Printf("created=%d updated=%d skipped=%d errored=%d\n",
		summary.Created, summary.Updated, summary.Skipped, summary.Errored)
}

func splitIDs(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
