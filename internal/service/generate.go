package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/olegk/qrsync/internal/artifact"
	"github.com/olegk/qrsync/internal/domain"
	"github.com/olegk/qrsync/internal/logger"
	"github.com/olegk/qrsync/internal/repository"
	"github.com/olegk/qrsync/internal/storage"
)

// ErrNoArtifacts is returned when a delete-all finds nothing to remove.
var ErrNoArtifacts = errors.New("no artifacts found in storage")

const listChunkSize = 500

// GenerateConfig holds configuration for the artifact generation service.
type GenerateConfig struct {
	// Prefix is the object-store folder holding generated artifacts.
	Prefix string
	// Domain is the default host embedded into generated links.
	Domain string
	// Group tags products made visible by generation.
	Group string
}

// GenerateOptions tunes one generation run.
type GenerateOptions struct {
	// IncludeBarcode renders the barcode as secondary text on the artifact.
	IncludeBarcode bool
	// Domain overrides the configured link host when non-empty.
	Domain string
}

// GenerateService drives artifact production for products and records the
// resulting URLs back on the product. Re-running generation for a product
// overwrites its artifact URLs; the record is only touched after the
// producer succeeded, so a failed item leaves the product as it was.
type GenerateService struct {
	products ProductStore
	storage  storage.ObjectStorage
	producer artifact.Producer
	batch    *BatchProcessor
	logger   *logger.Logger
	cfg      GenerateConfig
}

// NewGenerateService creates a new artifact generation service.
// Parameters:
//   - products: product store.
//   - store: object storage holding the artifacts.
//   - producer: artifact producer.
//   - batch: batch processor driving the sweep.
//   - log: logger instance.
//   - cfg: generation configuration.
// Returns:
//   - *GenerateService: initialized service.
func NewGenerateService(
	products ProductStore,
	store storage.ObjectStorage,
	producer artifact.Producer,
	batch *BatchProcessor,
	log *logger.Logger,
	cfg GenerateConfig,
) *GenerateService {
	return &GenerateService{
		products: products,
		storage:  store,
		producer: producer,
		batch:    batch,
		logger:   log,
		cfg:      cfg,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *GenerateService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// GenerateForProducts produces artifacts for the given product ids under
// the job. Unknown ids are dropped before the batch starts so the total
// reflects real work.
func (s *GenerateService) GenerateForProducts(ctx context.Context, jobID string, ids []string, opts GenerateOptions) (*Summary, error) {
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return s.run(ctx, jobID, products, opts)
}

// GenerateAll produces artifacts for every product matching the filter.
// The full set is collected up front so the job total is exact.
func (s *GenerateService) GenerateAll(ctx context.Context, jobID string, filter repository.ListFilter, opts GenerateOptions) (*Summary, error) {
	var products []domain.Product
	for offset := 0; ; offset += listChunkSize {
		page, err := s.products.List(ctx, filter, listChunkSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		products = append(products, page...)
		if len(page) < listChunkSize {
			break
		}
	}
	return s.run(ctx, jobID, products, opts)
}

func (s *GenerateService) run(ctx context.Context, jobID string, products []domain.Product, opts GenerateOptions) (*Summary, error) {
	return s.batch.Run(ctx, jobID, len(products), func(ctx context.Context, i int) Result {
		return s.generateOne(ctx, &products[i], opts)
	})
}

// generateOne produces the artifacts for a single product and stores the
// resulting URLs on it.
func (s *GenerateService) generateOne(ctx context.Context, p *domain.Product, opts GenerateOptions) Result {
	if p.Name == nil || *p.Name == "" {
		return Errored(fmt.Errorf("product %s has no name", p.ID))
	}

	domainName := s.cfg.Domain
	if opts.Domain != "" {
		domainName = opts.Domain
	}

	payload := artifact.Payload{
		BaseURL:        fmt.Sprintf("https://%s/01/0", domainName),
		Name:           *p.Name,
		IncludeBarcode: opts.IncludeBarcode,
	}
	if p.Barcode != nil {
		payload.Barcode = *p.Barcode
	}

	namingKey := s.cfg.Prefix + sanitizeName(*p.Name)
	art, err := s.producer.Produce(ctx, payload, namingKey)
	if err != nil {
		return Errored(fmt.Errorf("failed to produce artifacts for %s: %w", p.ID, err))
	}
	if art == nil || (art.RasterKey == "" && art.VectorKey == "") {
		return Errored(fmt.Errorf("producer returned no artifacts for %s", p.ID))
	}

	urls := domain.StringArray{}
	if art.RasterKey != "" {
		urls = append(urls, s.storage.GetURL(art.RasterKey))
	}
	if art.VectorKey != "" {
		urls = append(urls, s.storage.GetURL(art.VectorKey))
	}

	visible := true
	group := s.cfg.Group
	fields := domain.ProductFields{
		ArtifactURLs: &urls,
		Visible:      &visible,
		Group:        &group,
	}
	_, created, err := s.products.Upsert(ctx, p.ExternalKey, fields)
	if err != nil {
		return Errored(fmt.Errorf("failed to record artifacts for %s: %w", p.ID, err))
	}
	if created {
		return Created()
	}
	return Updated()
}

// DeleteAllArtifacts removes every stored artifact under the configured
// prefix and blanks the artifact URLs on all products. Folder marker keys
// are skipped.
// Returns:
//   - int: number of objects deleted.
//   - error: ErrNoArtifacts when storage held nothing, or a storage error.
func (s *GenerateService) DeleteAllArtifacts(ctx context.Context) (int, error) {
	var keys []string
	token := ""
	for {
		page, next, err := s.storage.ListPage(ctx, s.cfg.Prefix, token)
		if err != nil {
			return 0, fmt.Errorf("failed to list artifacts: %w", err)
		}
		for _, key := range page {
			if strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
		if next == "" {
			break
		}
		token = next
	}

	if len(keys) == 0 {
		return 0, ErrNoArtifacts
	}

	if err := s.storage.DeleteMany(ctx, keys); err != nil {
		return 0, fmt.Errorf("failed to delete artifacts: %w", err)
	}

	cleared, err := s.products.ClearArtifactURLs(ctx)
	if err != nil {
		return len(keys), fmt.Errorf("failed to clear artifact urls: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldCount: len(keys),
		"products":        cleared,
	}).Info("Deleted all artifacts")

	return len(keys), nil
}

// sanitizeName turns a product name into an object-key-safe token.
func sanitizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}
