package domain

import (
	"math"
	"time"
)

// SyncJob tracks one batch run (PIM reconciliation or QR generation).
// Processed is strictly non-decreasing and bounded by Total; Done flips to
// true exactly once, after the last item has been attempted. Progress is
// always derived from Processed/Total at read time, never stored.
type SyncJob struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Total     int       `gorm:"default:0" json:"total"`
	Processed int       `gorm:"default:0" json:"processed"`
	Done      bool      `gorm:"default:false" json:"done"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SyncJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SyncJob) TableName() string {
	return "sync_jobs"
}

// Progress returns the completion percentage, 0 when the total is unknown.
func (j *SyncJob) Progress() int {
	if j.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(j.Processed) / float64(j.Total) * 100))
}
