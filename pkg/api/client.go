// Package api is a minimal HTTP client for the paginated records API that
// backs the dashboard.
package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shpitdev/datadash/pkg/pipeline/core"
)

// Client talks to a records API rooted at a base URL.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// Page is one page of records.
type Page struct {
	Records    []Record `json:"records"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
}

// NewClient constructs a client for baseURL, e.g. "https://data.example.com/api".
//
// token is optional and sent as a bearer token. defaultCAPath is optional and,
// when provided, will be used as the trust store for TLS.
func NewClient(baseURL, token, defaultCAPath string) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	hc, err := newHTTPClient(defaultCAPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    hc,
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("data API base URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse data API base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("data API base URL must include a host (got %q)", raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func newHTTPClient(defaultCAPath string) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(defaultCAPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(defaultCAPath))
		if err != nil {
			return nil, fmt.Errorf("read DEFAULT_CA_PATH file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse DEFAULT_CA_PATH PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// FetchPage reads one page of records. Pages are 1-based.
func (c *Client) FetchPage(ctx context.Context, page, pageSize int) (Page, error) {
	if page < 1 {
		return Page{}, fmt.Errorf("page must be >= 1 (got %d)", page)
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	u := c.resolve("records")
	u.RawQuery = q.Encode()

	b, err := c.get(ctx, "fetchPage", u, "application/json")
	if err != nil {
		return Page{}, err
	}
	var out Page
	if err := json.Unmarshal(b, &out); err != nil {
		return Page{}, fmt.Errorf("parse records page %d: %w", page, err)
	}
	if out.Page == 0 {
		out.Page = page
	}
	if out.TotalPages < out.Page {
		out.TotalPages = out.Page
	}
	return out, nil
}

// FetchCSV reads the whole dataset from the CSV endpoint.
func (c *Client) FetchCSV(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "fetchCSV", c.resolve("records.csv"), "text/csv")
}

func (c *Client) get(ctx context.Context, op string, u *url.URL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, classify(newHTTPError(op, resp, b))
	}
	return b, nil
}

// classify wraps retryable failures in core.TransientError so the fetch
// worker retries them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var he *HTTPError
	if errors.As(err, &he) {
		if he.StatusCode == http.StatusTooManyRequests || he.StatusCode/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return &core.TransientError{Err: err}
	}
	return err
}

func (c *Client) resolve(relPath string) *url.URL {
	relPath = strings.TrimPrefix(relPath, "/")
	rel := &url.URL{Path: relPath}
	return c.baseURL.ResolveReference(rel)
}
