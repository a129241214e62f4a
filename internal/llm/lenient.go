package llm

import (
	"fmt"
	"strconv"
	"strings"
)

var lineLists = []string{"items", "taxes"}

// SanitizeReceipt normalizes the common ways a model drifts from the requested shape
// so the document can still validate. It returns the list of touched fields.
//   - missing or null items/taxes become empty lists
//   - money given as strings ("$3.50", "1,299.00") becomes a number
//   - numeric names become strings
//
// Anything it cannot repair is left alone for the schema check to reject.
func SanitizeReceipt(m map[string]any) []string {
	var changed []string

	for _, list := range lineLists {
		v, ok := m[list]
		if !ok || v == nil {
			m[list] = []any{}
			changed = append(changed, list+"(empty)")
			continue
		}
		entries, ok := v.([]any)
		if !ok {
			continue
		}
		for i, e := range entries {
			line, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if n, ok := line["name"].(float64); ok {
				line["name"] = strconv.FormatFloat(n, 'f', -1, 64)
				changed = append(changed, fmt.Sprintf("%s[%d].name", list, i))
			}
			if s, ok := line["name"].(string); ok {
				line["name"] = strings.TrimSpace(s)
			}
			if coerceMoney(line, "price") {
				changed = append(changed, fmt.Sprintf("%s[%d].price", list, i))
			}
		}
	}

	if coerceMoney(m, "total") {
		changed = append(changed, "total")
	}
	return changed
}

// coerceMoney replaces a string amount under key with its numeric value.
func coerceMoney(m map[string]any, key string) bool {
	s, ok := m[key].(string)
	if !ok {
		return false
	}
	f, ok := ParseAmount(s)
	if !ok {
		return false
	}
	m[key] = f
	return true
}

// ParseAmount parses "3.50", "$3.50", " 1,299.00 " or "-2" into a float.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
