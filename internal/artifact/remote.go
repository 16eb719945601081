package artifact

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/olegk/qrsync/internal/storage"
)

// formats requested from the render endpoint, in upload order.
var formats = []struct {
	name        string
	ext         string
	contentType string
}{
	{"png", ".png", "image/png"},
	{"eps", ".eps", "application/postscript"},
}

// RemoteConfig holds connection settings for the render endpoint.
type RemoteConfig struct {
	URL            string
	RequestTimeout time.Duration
}

// RemoteProducer renders artifacts through an external HTTP render service
// and stores the returned bytes in object storage. One POST per format; the
// response body is the rendered file.
type RemoteProducer struct {
	client  *resty.Client
	storage storage.ObjectStorage
	url     string
}

// NewRemoteProducer creates a new remote producer.
// Parameters:
//   - cfg: render endpoint settings.
//   - store: object storage receiving the rendered files.
// Returns:
//   - *RemoteProducer: initialized producer.
func NewRemoteProducer(cfg *RemoteConfig, store storage.ObjectStorage) *RemoteProducer {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	return &RemoteProducer{
		client:  client,
		storage: store,
		url:     cfg.URL,
	}
}

type renderRequest struct {
	URL            string `json:"url"`
	Name           string `json:"name"`
	Barcode        string `json:"barcode,omitempty"`
	IncludeBarcode bool   `json:"include_barcode"`
	Format         string `json:"format"`
}

// Produce renders the payload in every format and uploads the results under
// namingKey. Nothing is uploaded if any render call fails.
func (p *RemoteProducer) Produce(ctx context.Context, payload Payload, namingKey string) (*Artifact, error) {
	req := renderRequest{
		URL:            payload.BaseURL + payload.Barcode,
		Name:           payload.Name,
		Barcode:        payload.Barcode,
		IncludeBarcode: payload.IncludeBarcode,
	}

	rendered := make([][]byte, len(formats))
	for i, f := range formats {
		req.Format = f.name
		resp, err := p.client.R().
			SetContext(ctx).
			SetBody(req).
			Post(p.url)
		if err != nil {
			return nil, fmt.Errorf("render request failed for %s: %w", f.name, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("render endpoint returned status %d for %s", resp.StatusCode(), f.name)
		}
		body := resp.Body()
		if len(body) == 0 {
			return nil, fmt.Errorf("render endpoint returned empty %s", f.name)
		}
		rendered[i] = body
	}

	art := &Artifact{}
	for i, f := range formats {
		key := namingKey + f.ext
		if err := p.storage.Upload(ctx, key, bytes.NewReader(rendered[i]), int64(len(rendered[i])), f.contentType); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		switch f.name {
		case "png":
			art.RasterKey = key
		case "eps":
			art.VectorKey = key
		}
	}
	return art, nil
}
