package catalog

import (
	"context"
	"errors"
)

// ErrEmptyEntity marks an entity the catalog knows but has no field data
// for. Callers treat it as a per-item failure, not a transport error.
var ErrEmptyEntity = errors.New("catalog entity has no field values")

// FieldValue is one field of a catalog entity.
type FieldValue struct {
	FieldType string `json:"fieldTypeId"`
	Value     string `json:"value"`
}

// QueryFilter describes a catalog query. Collections are OR-ed criteria on
// the collection field; empty means "everything the catalog returns".
type QueryFilter struct {
	Collections []string
}

// Catalog is the external read-only product data source.
type Catalog interface {
	// Query returns the identifiers of entities matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]string, error)

	// Fetch returns the field values of one entity. ErrEmptyEntity is
	// returned when the catalog responds with an explicitly empty result.
	Fetch(ctx context.Context, id string) ([]FieldValue, error)
}
