package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

const (
	msgInvalidFormat = "Invalid receipt data format"
	msgInvalidShape  = "Invalid receipt data structure"
)

// ParseReceipt turns model output into a ReceiptDocument.
// Output that is not JSON fails with ErrExtractionFormat; JSON that is not an object,
// or does not validate after SanitizeReceipt, fails with ErrExtractionShape.
// The returned content is the trimmed model output whenever it is valid JSON.
func ParseReceipt(content []byte, logger *slog.Logger) (entity.ReceiptDocument, json.RawMessage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	trimmed := stripCodeFence(bytes.TrimSpace(content))

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return entity.ReceiptDocument{}, nil,
			common.NewAppError("INVALID_FORMAT", msgInvalidFormat, fmt.Errorf("%w: %v", common.ErrExtractionFormat, err))
	}
	raw := json.RawMessage(trimmed)

	m, ok := v.(map[string]any)
	if !ok {
		return entity.ReceiptDocument{}, raw,
			common.NewAppError("INVALID_SHAPE", msgInvalidShape, fmt.Errorf("%w: top-level value is %T", common.ErrExtractionShape, v))
	}

	if changed := SanitizeReceipt(m); len(changed) > 0 {
		logger.Warn("llm.extract.lenient_sanitize_applied", "changed", changed)
	}
	if err := ValidateReceipt(m); err != nil {
		logger.Error("llm.extract.schema_validation_failed", "error", err, "content", string(trimmed))
		return entity.ReceiptDocument{}, raw,
			common.NewAppError("INVALID_SHAPE", msgInvalidShape, fmt.Errorf("%w: %v", common.ErrExtractionShape, err))
	}

	cleaned, err := json.Marshal(m)
	if err != nil {
		return entity.ReceiptDocument{}, raw, fmt.Errorf("re-encode receipt: %w", err)
	}
	var doc entity.ReceiptDocument
	if err := json.Unmarshal(cleaned, &doc); err != nil {
		return entity.ReceiptDocument{}, raw,
			common.NewAppError("INVALID_SHAPE", msgInvalidShape, fmt.Errorf("%w: %v", common.ErrExtractionShape, err))
	}
	return doc, raw, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block some models emit.
func stripCodeFence(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	b = bytes.TrimPrefix(b, []byte("```"))
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	b = bytes.TrimSuffix(bytes.TrimSpace(b), []byte("```"))
	return bytes.TrimSpace(b)
}
