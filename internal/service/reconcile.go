package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/olegk/qrsync/internal/catalog"
	"github.com/olegk/qrsync/internal/domain"
	"github.com/olegk/qrsync/internal/logger"
)

// FieldMapping maps external catalog field type ids to product fields.
// Valid targets: name, barcode, source_url, image_url.
type FieldMapping map[string]string

// ReconcileConfig holds configuration for the reconciliation service.
type ReconcileConfig struct {
	// Group tags every reconciled product with its source.
	Group string
	// FieldMap resolves catalog fields into product fields.
	FieldMap FieldMapping
	// RedirectURL is the base for derived product links; the product name
	// is appended.
	RedirectURL string
	// ImageURLTemplate derives the product image link; %s is the name.
	ImageURLTemplate string
}

// ReconcileService pulls entities from the external catalog and upserts them
// into the product store. Already-known keys are skipped without touching
// the network; re-running a pass is the retry mechanism and is safe because
// the upsert is idempotent by external key.
type ReconcileService struct {
	products    ProductStore
	collections CollectionStore
	catalog     catalog.Catalog
	batch       *BatchProcessor
	logger      *logger.Logger
	cfg         ReconcileConfig
}

// NewReconcileService creates a new reconciliation service.
// Parameters:
//   - products: product store for upserts and existence checks.
//   - collections: stored collection codes for the "sync all" query.
//   - cat: external catalog collaborator.
//   - batch: batch processor driving the sweep.
//   - log: logger instance.
//   - cfg: reconciliation configuration.
// Returns:
//   - *ReconcileService: initialized service.
func NewReconcileService(
	products ProductStore,
	collections CollectionStore,
	cat catalog.Catalog,
	batch *BatchProcessor,
	log *logger.Logger,
	cfg ReconcileConfig,
) *ReconcileService {
	return &ReconcileService{
		products:    products,
		collections: collections,
		catalog:     cat,
		batch:       batch,
		logger:      log,
		cfg:         cfg,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ReconcileService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// SyncIDs reconciles the given catalog entity ids under the job.
// Parameters:
//   - ctx: context for cancellation.
//   - jobID: job registry id owning this run.
//   - ids: catalog entity identifiers.
// Returns:
//   - *Summary: created/updated/skipped/errored counts.
//   - error: non-nil only when the run could not start or was cancelled.
func (s *ReconcileService) SyncIDs(ctx context.Context, jobID string, ids []string) (*Summary, error) {
	return s.batch.Run(ctx, jobID, len(ids), func(ctx context.Context, i int) Result {
		return s.reconcileOne(ctx, ids[i])
	})
}

// SyncAll queries the catalog for every entity in the stored collections and
// reconciles the result. The total is computed eagerly from the returned id
// list so the job's progress percentage is meaningful from the first item.
func (s *ReconcileService) SyncAll(ctx context.Context, jobID string) (*Summary, error) {
	codes, err := s.collections.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load collections: %w", err)
	}

	ids, err := s.catalog.Query(ctx, catalog.QueryFilter{Collections: codes})
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID:  jobID,
		logger.FieldSource: s.cfg.Group,
		logger.FieldCount:  len(ids),
	}).Info("Catalog query returned entities")

	return s.SyncIDs(ctx, jobID, ids)
}

// reconcileOne processes a single catalog entity id.
func (s *ReconcileService) reconcileOne(ctx context.Context, id string) Result {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return Errored(fmt.Errorf("malformed entity id %q: %w", id, err))
	}

	exists, err := s.products.ExistsByExternalKey(ctx, id)
	if err != nil {
		return Errored(fmt.Errorf("failed to check entity %s: %w", id, err))
	}
	if exists {
		return Skipped()
	}

	values, err := s.catalog.Fetch(ctx, id)
	if err != nil {
		return Errored(fmt.Errorf("failed to fetch entity %s: %w", id, err))
	}

	fields := s.mapFields(values)

	group := s.cfg.Group
	visible := true
	fields.Group = &group
	fields.Visible = &visible
	if fields.Name != nil {
		if s.cfg.RedirectURL != "" && fields.SourceURL == nil {
			u := s.cfg.RedirectURL + *fields.Name
			fields.SourceURL = &u
		}
		if s.cfg.ImageURLTemplate != "" && fields.ImageURL == nil {
			u := fmt.Sprintf(s.cfg.ImageURLTemplate, *fields.Name)
			fields.ImageURL = &u
		}
	}

	_, created, err := s.products.Upsert(ctx, id, fields)
	if err != nil {
		return Errored(fmt.Errorf("failed to upsert entity %s: %w", id, err))
	}
	if created {
		return Created()
	}
	return Updated()
}

// mapFields resolves catalog field values through the configured mapping.
// Fields absent upstream stay nil; they are never an error.
func (s *ReconcileService) mapFields(values []catalog.FieldValue) domain.ProductFields {
	var fields domain.ProductFields
	for _, v := range values {
		target, ok := s.cfg.FieldMap[v.FieldType]
		if !ok {
			continue
		}
		value := v.Value
		switch target {
		case "name":
			fields.Name = &value
		case "barcode":
			fields.Barcode = &value
		case "source_url":
			fields.SourceURL = &value
		case "image_url":
			fields.ImageURL = &value
		}
	}
	return fields
}
