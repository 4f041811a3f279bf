package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/datadash/pkg/pipeline/redact"
)

// errorEnvelope is the error body shape the records API returns.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPError is a sanitized summary of a non-2xx API response.
//
// Important: do not include raw response bodies here (can leak PII/tokens).
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Message    string

	// Snippet is a redacted, truncated hint for bodies without an error envelope.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "data api http error"
	}
	parts := []string{
		fmt.Sprintf("data api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.Message))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		msg := strings.TrimSpace(env.Error)
		if msg == "" {
			msg = strings.TrimSpace(env.Message)
		}
		if msg != "" {
			h.Message = truncate(redact.Secrets(msg))
			return h
		}
	}

	h.Snippet = truncate(redact.Secrets(string(body)))
	return h
}

// truncate keeps at most 256 bytes on one line.
func truncate(s string) string {
	const max = 256
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
