package llm

// BuildReceiptJSONSchema returns the JSON-Schema the sanitized model output must satisfy.
// Unknown keys are tolerated; only the fields the flattener reads are constrained.
func BuildReceiptJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": lineListProp(),
			"taxes": lineListProp(),
			"total": map[string]any{"type": "number"},
		},
		"required": []string{"items", "taxes", "total"},
	}
}

func lineListProp() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":  map[string]any{"type": "string"},
				"price": map[string]any{"type": "number"},
			},
			"required": []string{"name", "price"},
		},
	}
}
