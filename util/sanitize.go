// Package util holds small helpers shared by the service packages.
package util

import (
	"regexp"
	"strings"

	"github.com/dilneiss/CSRFProtector/core"
)

// MaxSanitizeLength caps the input scanned by SanitizeString
const MaxSanitizeLength = 64 * 1024

const redacted = "REDACTED"

var sanitizePatterns = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)(password|passwd|pwd)[\s:=]+[^\s&]+`), "$1=" + redacted},
	{regexp.MustCompile(`(?i)"password"\s*:\s*"[^"]+"`), `"password":"` + redacted + `"`},
	{regexp.MustCompile(`(?i)(csrftoken|token|authorization)[\s:=]+[^\s&]+`), "$1=" + redacted},
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]+`), "bearer " + redacted},
	// Credentials embedded in redis:// or smtp:// style URLs
	{regexp.MustCompile(`([a-z][a-z0-9+.-]*://[^:/\s]*):[^@/\s]+@`), "$1:" + redacted + "@"},
	// Bare token values
	{regexp.MustCompile(`\b[0-9a-f]{128}\b`), redacted},
}

var sensitiveFields = map[string]bool{
	strings.ToLower(core.FieldToken): true,
	"password":                       true,
	"passwd":                         true,
	"token":                          true,
	"secret":                         true,
	"authorization":                  true,
}

// SanitizeError returns err's message with secrets redacted
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString redacts passwords, token values and URL credentials from s.
// Input longer than MaxSanitizeLength is truncated first.
func SanitizeString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > MaxSanitizeLength {
		s = s[:MaxSanitizeLength] + "... [truncated]"
	}

	for _, p := range sanitizePatterns {
		s = p.pattern.ReplaceAllString(s, p.replacement)
	}
	return s
}

// SanitizeFields returns a copy of posted fields safe to log. Values of
// secret-bearing fields are replaced and the rest are passed through SanitizeString.
func SanitizeFields(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if sensitiveFields[strings.ToLower(k)] {
			out[k] = redacted
			continue
		}
		out[k] = SanitizeString(v)
	}
	return out
}
