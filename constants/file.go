package constants

import "strings"

// AllowedImageTypes holds the content types accepted for receipt images.
var AllowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// DefaultImageType is assumed when an inline payload carries no data URL header
// and its bytes are not recognized.
const DefaultImageType = "image/jpeg"

// NormalizeContentType lowercases a content type and drops any parameters.
func NormalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsAllowedImageType reports whether ct is one of AllowedImageTypes.
func IsAllowedImageType(ct string) bool {
	_, ok := AllowedImageTypes[NormalizeContentType(ct)]
	return ok
}
