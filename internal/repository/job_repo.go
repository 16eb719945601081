package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/olegk/qrsync/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepository is the durable registry of batch jobs. Every mutation
// persists immediately so a poller always observes a value at least as fresh
// as the last successful write.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateOrGet returns the job with the given id, creating a zero-valued
// record when it does not exist yet.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job id.
// Returns:
//   - *domain.SyncJob: existing or freshly created job record.
//   - error: non-nil if the store is unreachable.
func (r *JobRepository) CreateOrGet(ctx context.Context, id string) (*domain.SyncJob, error) {
	job := domain.SyncJob{ID: id}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	var out domain.SyncJob
	if err := r.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return &out, nil
}

// SetTotal starts a fresh run for the job: the planned item count is set and
// processed/done are reset in the same write.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job id.
//   - total: number of items planned for the run.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) SetTotal(ctx context.Context, id string, total int) error {
	return r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total":     total,
			"processed": 0,
			"done":      false,
		}).Error
}

// Advance records progress for the job. The counter never moves backward:
// a write with a processed value at or below the stored one is a no-op, so
// out-of-order completions from parallel workers stay monotonic for pollers.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job id.
//   - processed: number of items attempted so far.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Advance(ctx context.Context, id string, processed int) error {
	return r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("id = ? AND processed < ?", id, processed).
		Update("processed", processed).Error
}

// MarkDone flips the done flag. The flag is one-way: nothing ever clears it
// besides SetTotal starting the next run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job id.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) MarkDone(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.SyncJob{}).
		Where("id = ?", id).
		Update("done", true).Error
}

// Get retrieves a job by id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job id.
// Returns:
//   - *domain.SyncJob: job record if found.
//   - error: ErrNotFound if the id is unknown.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}
