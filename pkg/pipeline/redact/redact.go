// Package redact scrubs credentials from strings before they reach logs or
// the dashboard.
package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// key=value and key: value forms of known credential names.
	secretKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|data[_-]?api[_-]?token|access[_-]?token|token)\b\s*[:=]\s*[^\s"'&]+`)

	// user:password@ in URLs.
	urlUserinfoRe = regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://)[^/\s:@]+:[^/\s@]+@`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = secretKVRe.ReplaceAllString(out, "${1}=<redacted>")
	out = urlUserinfoRe.ReplaceAllString(out, "${1}<redacted>@")
	return strings.TrimSpace(out)
}
