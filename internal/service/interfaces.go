package service

import (
	"context"

	"github.com/olegk/qrsync/internal/domain"
	"github.com/olegk/qrsync/internal/repository"
)

// JobStore is the durable job registry consumed by the batch processor.
// *repository.JobRepository is the production implementation.
type JobStore interface {
	CreateOrGet(ctx context.Context, id string) (*domain.SyncJob, error)
	SetTotal(ctx context.Context, id string, total int) error
	Advance(ctx context.Context, id string, processed int) error
	MarkDone(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.SyncJob, error)
}

// ProductStore is the keyed product persistence consumed by the item
// handlers. *repository.ProductRepository is the production implementation.
type ProductStore interface {
	Upsert(ctx context.Context, externalKey string, fields domain.ProductFields) (*domain.Product, bool, error)
	ExistsByExternalKey(ctx context.Context, externalKey string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	List(ctx context.Context, filter repository.ListFilter, limit, offset int) ([]domain.Product, error)
	ClearArtifactURLs(ctx context.Context) (int64, error)
}

// CollectionStore holds the PIM collection codes scoping "sync all".
type CollectionStore interface {
	ReplaceAll(ctx context.Context, codes []string) error
	ListCodes(ctx context.Context) ([]string, error)
}
