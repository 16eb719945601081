package repository

import (
	"context"
	"fmt"

	"github.com/olegk/qrsync/internal/domain"
	"gorm.io/gorm"
)

// CollectionRepository stores the PIM collection codes scoping "sync all".
type CollectionRepository struct {
	db *gorm.DB
}

// NewCollectionRepository creates a new CollectionRepository.
func NewCollectionRepository(db *gorm.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

// ReplaceAll swaps the stored code set for the given one in a single
// transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - codes: collection codes to store.
// Returns:
//   - error: non-nil if the write fails.
func (r *CollectionRepository) ReplaceAll(ctx context.Context, codes []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.Collection{}).Error; err != nil {
			return fmt.Errorf("failed to clear collections: %w", err)
		}
		for _, code := range codes {
			if code == "" {
				continue
			}
			if err := tx.Create(&domain.Collection{Code: code}).Error; err != nil {
				return fmt.Errorf("failed to store collection %q: %w", code, err)
			}
		}
		return nil
	})
}

// ListCodes returns all stored collection codes.
func (r *CollectionRepository) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).Model(&domain.Collection{}).
		Order("code").
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}
