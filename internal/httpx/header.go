package httpx

import (
	"strings"
	"unicode"
)

// CanonicalHeaderKey returns the canonical format of the HTTP header key,
// identical to textproto.CanonicalMIMEHeaderKey from the stdlib.
func CanonicalHeaderKey(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		for j := 1; j < len(runes); j++ {
			runes[j] = unicode.ToLower(runes[j])
		}
		parts[i] = string(runes)
	}
	return strings.Join(parts, "-")
}
