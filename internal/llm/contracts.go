package llm

import (
	"context"
	"encoding/json"

	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

// ImageInput points the model at a receipt image. URL is either a fetchable
// https URL or a data URL ("data:image/png;base64,...").
type ImageInput struct {
	URL string
}

// Extraction is the outcome of one extraction call.
type Extraction struct {
	Document entity.ReceiptDocument
	// Content is the JSON text the model produced, before sanitizing.
	Content json.RawMessage
	// Raw is the full vendor response body.
	Raw []byte
}

// Extractor is the interface the upload pipeline depends on.
// On format or shape errors the returned Extraction is non-nil and carries Raw.
type Extractor interface {
	ExtractReceipt(ctx context.Context, in ImageInput) (*Extraction, error)
}
