package validators

import (
	"net/http"
	"strings"
	"unicode"
)

// SanitizeString trims whitespace, drops control characters and truncates to
// maxLen runes when maxLen > 0.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

// QueryParam returns the sanitized value of a query string parameter.
func QueryParam(r *http.Request, name string, maxLen int) string {
	return SanitizeString(r.URL.Query().Get(name), maxLen)
}
