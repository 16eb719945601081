package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Product represents a catalog product being reconciled against the PIM
// and enriched with generated QR artifacts.
// ExternalKey is the PIM entity id and the sole upsert identity: the
// repository guarantees at most one record per key.
type Product struct {
	ID           string      `gorm:"type:text;primaryKey" json:"id"`
	ExternalKey  string      `gorm:"type:text;not null;uniqueIndex:idx_products_external_key" json:"external_key"`
	Name         *string     `gorm:"type:text;index:idx_products_name" json:"name,omitempty"`
	Barcode      *string     `gorm:"type:text;index:idx_products_barcode" json:"barcode,omitempty"`
	Group        string      `gorm:"column:group_name;type:text;index:idx_products_group" json:"group"`
	Visible      bool        `gorm:"default:false" json:"visible"`
	SourceURL    *string     `gorm:"type:text" json:"source_url,omitempty"`
	ImageURL     *string     `gorm:"type:text" json:"image_url,omitempty"`
	ArtifactURLs StringArray `gorm:"type:text" json:"artifact_urls"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Product.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Product) TableName() string {
	return "products"
}

// HasArtifacts reports whether the product has generated artifact URLs.
func (p *Product) HasArtifacts() bool {
	return len(p.ArtifactURLs) > 0
}

// ProductFields is a typed partial record for upserts. Nil fields are left
// untouched by the repository; non-nil fields overwrite the stored value.
type ProductFields struct {
	Name         *string
	Barcode      *string
	Group        *string
	Visible      *bool
	SourceURL    *string
	ImageURL     *string
	ArtifactURLs *StringArray
}

// IsZero reports whether no field is set.
func (f ProductFields) IsZero() bool {
	return f.Name == nil && f.Barcode == nil && f.Group == nil &&
		f.Visible == nil && f.SourceURL == nil && f.ImageURL == nil &&
		f.ArtifactURLs == nil
}
