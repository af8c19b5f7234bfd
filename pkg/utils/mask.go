package utils

import (
	"regexp"
	"strings"
)

var urlPasswordRegex = regexp.MustCompile(`(://[^:/@]*:)([^@/]+)(@)`)

// MaskURL hides the password portion of a URL with embedded userinfo.
func MaskURL(raw string) string {
	return urlPasswordRegex.ReplaceAllString(raw, "${1}***${3}")
}

// MaskSecret keeps at most the first two characters of s.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + strings.Repeat("*", 3)
}
