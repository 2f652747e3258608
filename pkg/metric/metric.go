// Package metric normalizes metric identifiers so "API Calls", "api_calls"
// and "api-calls" meter into the same bucket.
package metric

import (
	"strings"

	"github.com/gosimple/slug"
)

// Normalize returns the canonical identifier for name, or "" when nothing
// usable remains.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return slug.Make(strings.ReplaceAll(name, "_", "-"))
}
