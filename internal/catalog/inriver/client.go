package inriver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/olegk/qrsync/internal/catalog"
)

const (
	queryPath       = "/api/v1.0.0/query"
	fieldValuesPath = "/api/v1.0.0/entities/%d/fieldvalues"

	collectionFieldType = "ItemCollection"
)

// Client talks to the inRiver PIM REST API.
type Client struct {
	client  *resty.Client
	baseURL string
}

// Config holds connection settings for the inRiver API.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// NewClient creates a new inRiver API client.
// Parameters:
//   - cfg: connection settings including the API key.
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Accept", "application/json")
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("X-inRiver-APIKey", cfg.APIKey)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	return &Client{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

type dataCriterion struct {
	FieldTypeID string `json:"fieldTypeId"`
	Value       string `json:"value"`
	Operator    string `json:"operator"`
}

type queryRequest struct {
	SystemCriteria       []dataCriterion `json:"systemCriteria"`
	DataCriteria         []dataCriterion `json:"dataCriteria"`
	DataCriteriaOperator string          `json:"dataCriteriaOperator,omitempty"`
}

type queryResponse struct {
	EntityIDs []int64 `json:"entityIds"`
}

// Query returns the identifiers of entities matching the filter. Each
// collection code becomes one OR-ed equality criterion on the collection
// field, mirroring the PIM query contract.
func (c *Client) Query(ctx context.Context, filter catalog.QueryFilter) ([]string, error) {
	req := queryRequest{
		SystemCriteria: []dataCriterion{},
		DataCriteria:   make([]dataCriterion, 0, len(filter.Collections)),
	}
	for _, code := range filter.Collections {
		req.DataCriteria = append(req.DataCriteria, dataCriterion{
			FieldTypeID: collectionFieldType,
			Value:       code,
			Operator:    "Equal",
		})
	}
	if len(req.DataCriteria) > 1 {
		req.DataCriteriaOperator = "Or"
	}

	var resp queryResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.baseURL + queryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to query inRiver: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		return nil, fmt.Errorf("inRiver query error: status %d", httpResp.StatusCode())
	}

	ids := make([]string, 0, len(resp.EntityIDs))
	for _, id := range resp.EntityIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return ids, nil
}

// Fetch returns the field values of one entity. A literal "[]" body is the
// catalog's empty-result marker and maps to catalog.ErrEmptyEntity.
func (c *Client) Fetch(ctx context.Context, id string) ([]catalog.FieldValue, error) {
	entityID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid entity id %q: %w", id, err)
	}

	var fields []catalog.FieldValue
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetResult(&fields).
		Get(c.baseURL + fmt.Sprintf(fieldValuesPath, entityID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entity %s: %w", id, err)
	}
	if httpResp.StatusCode() != 200 {
		return nil, fmt.Errorf("inRiver fetch error for entity %s: status %d", id, httpResp.StatusCode())
	}
	if strings.TrimSpace(string(httpResp.Body())) == "[]" || len(fields) == 0 {
		return nil, catalog.ErrEmptyEntity
	}
	return fields, nil
}
