package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	receiptSchemaOnce sync.Once
	receiptSchema     *jsonschema.Schema
	receiptSchemaErr  error
)

// CompileSchema compiles schemaMap with the jsonschema compiler.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("receipt.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("receipt.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateReceipt checks a decoded JSON value against the receipt schema.
func ValidateReceipt(v any) error {
	receiptSchemaOnce.Do(func() {
		receiptSchema, receiptSchemaErr = CompileSchema(BuildReceiptJSONSchema())
	})
	if receiptSchemaErr != nil {
		return receiptSchemaErr
	}
	if err := receiptSchema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
