// Package mockapi serves a CSV table through the same paginated records API the
// dashboard reads from. It backs local runs and tests.
package mockapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/shpitdev/datadash/pkg/api"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
	Query  string
}

// Server implements a minimal records API over an in-memory table.
type Server struct {
	header []string
	rows   [][]string

	mu    sync.Mutex
	calls []Call

	expectedAuthorization string

	// failures holds injected error statuses, consumed one per request.
	failures []int
}

// New constructs a server over header and rows. Short rows are padded with
// empty cells.
func New(header []string, rows [][]string) *Server {
	h := make([]string, len(header))
	for i, v := range header {
		h[i] = strings.TrimSpace(v)
	}
	rs := make([][]string, len(rows))
	for i, r := range rows {
		row := make([]string, len(h))
		copy(row, r)
		rs[i] = row
	}
	return &Server{header: h, rows: rs}
}

// FromCSV reads a CSV with a header row.
func FromCSV(r io.Reader) (*Server, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}
	recs[0][0] = strings.TrimPrefix(recs[0][0], "\ufeff")
	return New(recs[0], recs[1:]), nil
}

// LoadFile reads the CSV at path.
func LoadFile(path string) (*Server, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return FromCSV(f)
}

// RequireBearerToken enforces that requests include an Authorization header matching the token.
// If token is empty, authorization is not enforced.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// FailNext makes the next n requests answer with status.
func (s *Server) FailNext(n int, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, status)
	}
}

// Rows returns the number of rows served.
func (s *Server) Rows() int {
	return len(s.rows)
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/records", s.handleRecords)
	mux.HandleFunc("/records.csv", s.handleCSV)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// admit records the call and applies auth and injected failures. It reports
// whether the handler should continue.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
	expected := s.expectedAuthorization
	status := 0
	if len(s.failures) > 0 {
		status = s.failures[0]
		s.failures = s.failures[1:]
	}
	s.mu.Unlock()

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if expected != "" && r.Header.Get("Authorization") != expected {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if status != 0 {
		writeError(w, status, "injected failure")
		return false
	}
	return true
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	page, err := intParam(r, "page", 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	size, err := intParam(r, "page_size", DefaultPageSize)
	if err != nil || size < 1 {
		writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
		return
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	total := (len(s.rows) + size - 1) / size
	if total < 1 {
		total = 1
	}
	lo := (page - 1) * size
	hi := lo + size
	if lo > len(s.rows) {
		lo = len(s.rows)
	}
	if hi > len(s.rows) {
		hi = len(s.rows)
	}

	out := api.Page{Page: page, TotalPages: total, Records: make([]api.Record, 0, hi-lo)}
	for _, row := range s.rows[lo:hi] {
		out.Records = append(out.Records, s.record(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) record(row []string) api.Record {
	rec := api.Record{Keys: s.header, Values: make(map[string]any, len(s.header))}
	for i, k := range s.header {
		rec.Values[k] = jsonValue(row[i])
	}
	return rec
}

// jsonValue types a CSV cell: empty cells become null, JSON numbers and
// booleans keep their type, everything else is a string.
func jsonValue(cell string) any {
	cell = strings.TrimSpace(cell)
	switch {
	case cell == "":
		return nil
	case cell == "true":
		return true
	case cell == "false":
		return false
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil && json.Valid([]byte(cell)) {
		return json.Number(cell)
	}
	return cell
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(s.header)
	_ = cw.WriteAll(s.rows)
	if err := cw.Error(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
