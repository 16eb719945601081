package domain

import "time"

// Collection is a PIM collection code used to scope the "sync all" query.
type Collection struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"type:text;not null;uniqueIndex:idx_collections_code" json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Collection.
func (Collection) TableName() string {
	return "collections"
}
