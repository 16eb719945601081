package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/olegk/qrsync/internal/domain"
	"gorm.io/gorm"
)

// ProductRepository handles product data operations. The external key is the
// sole upsert identity; all writes for a key go through a transaction so
// concurrent upserts never interleave partial field sets.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProductRepository: repository instance bound to db.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Upsert creates the product for externalKey when absent, otherwise
// overwrites only the supplied fields. Calling it twice with the same fields
// leaves the same final state.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - externalKey: stable external identity for the product.
//   - fields: partial record; nil members are left untouched.
// Returns:
//   - *domain.Product: the record after the write.
//   - bool: true when a new record was created.
//   - error: non-nil if the write fails.
func (r *ProductRepository) Upsert(ctx context.Context, externalKey string, fields domain.ProductFields) (*domain.Product, bool, error) {
	var out domain.Product
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Product
		err := tx.First(&existing, "external_key = ?", externalKey).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			record := newProduct(externalKey, fields)
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("failed to create product: %w", err)
			}
			out = *record
			return nil
		case err != nil:
			return fmt.Errorf("failed to look up product: %w", err)
		}

		updates := fieldsToUpdates(fields)
		if len(updates) > 0 {
			if err := tx.Model(&domain.Product{}).
				Where("external_key = ?", externalKey).
				Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update product: %w", err)
			}
		}
		if err := tx.First(&out, "external_key = ?", externalKey).Error; err != nil {
			return fmt.Errorf("failed to reload product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func newProduct(externalKey string, fields domain.ProductFields) *domain.Product {
	now := time.Now()
	p := &domain.Product{
		ID:          uuid.New().String(),
		ExternalKey: externalKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if fields.Name != nil {
		p.Name = fields.Name
	}
	if fields.Barcode != nil {
		p.Barcode = fields.Barcode
	}
	if fields.Group != nil {
		p.Group = *fields.Group
	}
	if fields.Visible != nil {
		p.Visible = *fields.Visible
	}
	if fields.SourceURL != nil {
		p.SourceURL = fields.SourceURL
	}
	if fields.ImageURL != nil {
		p.ImageURL = fields.ImageURL
	}
	if fields.ArtifactURLs != nil {
		p.ArtifactURLs = *fields.ArtifactURLs
	}
	return p
}

// fieldsToUpdates converts the partial record into a column update map.
// Only non-nil fields take part in the write.
func fieldsToUpdates(fields domain.ProductFields) map[string]interface{} {
	updates := map[string]interface{}{}
	if fields.Name != nil {
		updates["name"] = *fields.Name
	}
	if fields.Barcode != nil {
		updates["barcode"] = *fields.Barcode
	}
	if fields.Group != nil {
		updates["group_name"] = *fields.Group
	}
	if fields.Visible != nil {
		updates["visible"] = *fields.Visible
	}
	if fields.SourceURL != nil {
		updates["source_url"] = *fields.SourceURL
	}
	if fields.ImageURL != nil {
		updates["image_url"] = *fields.ImageURL
	}
	if fields.ArtifactURLs != nil {
		updates["artifact_urls"] = *fields.ArtifactURLs
	}
	return updates
}

// ExistsByExternalKey checks whether a product with the given key exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - externalKey: external identity to check.
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *ProductRepository) ExistsByExternalKey(ctx context.Context, externalKey string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("external_key = ?", externalKey).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByExternalKey retrieves a product by its external key.
func (r *ProductRepository) GetByExternalKey(ctx context.Context, externalKey string) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, "external_key = ?", externalKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

// GetByID retrieves a product by its primary id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

// GetByBarcode retrieves a product by barcode.
func (r *ProductRepository) GetByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, "barcode = ?", barcode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

// GetByIDs retrieves products by a list of primary ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}
	var products []domain.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get products by IDs: %w", err)
	}
	return products, nil
}

// ListFilter narrows List and Count results. Zero values mean "no filter".
type ListFilter struct {
	Name             string
	Group            string
	VisibleOnly      bool
	WithoutArtifacts bool
}

func (r *ProductRepository) applyFilter(query *gorm.DB, filter ListFilter) *gorm.DB {
	if filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.Group != "" {
		query = query.Where("group_name = ?", filter.Group)
	}
	if filter.VisibleOnly {
		query = query.Where("visible = ?", true)
	}
	if filter.WithoutArtifacts {
		query = query.Where("artifact_urls IS NULL OR artifact_urls = '' OR artifact_urls = '[]'")
	}
	return query
}

// List retrieves products matching the filter, ordered by name.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: list filter; zero values disable individual conditions.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Product: matching records.
//   - error: non-nil if the query fails.
func (r *ProductRepository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]domain.Product, error) {
	var products []domain.Product
	query := r.applyFilter(r.db.WithContext(ctx), filter)
	if err := query.
		Order("name").
		Limit(limit).
		Offset(offset).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Count counts products matching the filter.
func (r *ProductRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	var count int64
	query := r.applyFilter(r.db.WithContext(ctx).Model(&domain.Product{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ClearArtifactURLs empties the artifact URL list on every product that has
// one. Used after a bulk artifact deletion.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of records touched.
//   - error: non-nil if the update fails.
func (r *ProductRepository) ClearArtifactURLs(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("artifact_urls IS NOT NULL AND artifact_urls != '' AND artifact_urls != '[]'").
		Update("artifact_urls", domain.StringArray{})
	return res.RowsAffected, res.Error
}
