package artifact

import "context"

// Payload is the encodable content for one artifact.
type Payload struct {
	BaseURL        string // link base embedded in the code
	Name           string
	Barcode        string
	IncludeBarcode bool // append the barcode as secondary text
}

// Artifact describes where the producer stored the generated files.
type Artifact struct {
	RasterKey string
	VectorKey string
}

// Producer renders and stores artifacts for a payload. Rendering lives
// outside this module; the batch engine only consumes the descriptor.
type Producer interface {
	// Produce generates the raster and vector artifacts for the payload,
	// storing them under names derived from namingKey.
	Produce(ctx context.Context, payload Payload, namingKey string) (*Artifact, error)
}
