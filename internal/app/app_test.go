package app_test

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shpitdev/datadash/internal/app"
	"github.com/shpitdev/datadash/pkg/api"
	"github.com/shpitdev/datadash/pkg/chart"
	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/mockapi"
	"github.com/shpitdev/datadash/pkg/pipeline/view"
	"github.com/shpitdev/datadash/pkg/pipeline/worker"
	"github.com/shpitdev/datadash/pkg/provider"
)

const inputCSV = `barrio,precio,habitaciones
centro,100,2
norte,200,3
sur,300,2
este,,1
oeste,250,4
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startMock(t *testing.T, token string) (*mockapi.Server, *httptest.Server) {
	t.Helper()
	mock, err := mockapi.FromCSV(strings.NewReader(inputCSV))
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	mock.RequireBearerToken(token)
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)
	return mock, ts
}

func fastFetch() worker.Options {
	return worker.Options{Workers: 2, MaxRetries: 2, BackoffInitial: time.Millisecond, BackoffMax: 2 * time.Millisecond}
}

func TestRunExport_EndToEndAgainstMock(t *testing.T) {
	t.Parallel()

	_, ts := startMock(t, "dummy-token")
	p, err := app.NewProvider(app.SourceConfig{
		Env:      api.Env{BaseURL: ts.URL, Token: "dummy-token"},
		PageSize: 2,
		Fetch:    fastFetch(),
	}, quietLogger())
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	outDir := filepath.Join(t.TempDir(), "out")
	res, err := app.RunExport(context.Background(), p, view.Selection{
		Kind:   chart.Scatter,
		X:      "precio",
		Y:      "habitaciones",
		XRange: &dataset.Range{Min: 200, Max: 300},
	}, outDir, quietLogger())
	if err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	if res.Rows != 3 {
		t.Fatalf("rows=%d want 3", res.Rows)
	}
	if res.CSVPath != filepath.Join(outDir, "datos_filtrados.csv") || res.PNGPath != filepath.Join(outDir, "grafico.png") {
		t.Fatalf("unexpected paths: %+v", res)
	}

	gotCSV, err := os.ReadFile(res.CSVPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := "barrio,precio,habitaciones\nnorte,200,3\nsur,300,2\noeste,250,4\n"
	if string(gotCSV) != want {
		t.Fatalf("csv=%q want %q", gotCSV, want)
	}

	gotPNG, err := os.ReadFile(res.PNGPath)
	if err != nil {
		t.Fatalf("read png: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(gotPNG)); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}

func TestRunExport_DataUnavailable(t *testing.T) {
	t.Parallel()

	_, ts := startMock(t, "right-token")
	p, err := app.NewProvider(app.SourceConfig{
		Env:   api.Env{BaseURL: ts.URL, Token: "wrong-token"},
		Fetch: fastFetch(),
	}, quietLogger())
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	outDir := t.TempDir()
	_, err = app.RunExport(context.Background(), p, view.Selection{Kind: chart.Bar}, outDir, quietLogger())
	var du *provider.DataUnavailableError
	if !errors.As(err, &du) {
		t.Fatalf("expected DataUnavailableError, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "datos_filtrados.csv")); !os.IsNotExist(statErr) {
		t.Fatalf("no artifact should be written on failure")
	}
}

func TestNewProvider_Sources(t *testing.T) {
	t.Parallel()

	_, ts := startMock(t, "")
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(csvPath, []byte(inputCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	schemaPath := filepath.Join(dir, "schema.yaml")
	if err := os.WriteFile(schemaPath, []byte("columns:\n  - name: precio\n    type: float\n"), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}

	tests := []struct {
		name string
		cfg  app.SourceConfig
	}{
		{name: "json pages", cfg: app.SourceConfig{Env: api.Env{BaseURL: ts.URL}, PageSize: 3, Fetch: fastFetch(), SchemaPath: schemaPath}},
		{name: "csv endpoint", cfg: app.SourceConfig{Env: api.Env{BaseURL: ts.URL}, Format: "csv", SchemaPath: schemaPath}},
		{name: "csv file", cfg: app.SourceConfig{CSVPath: csvPath, SchemaPath: schemaPath}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := app.NewProvider(tt.cfg, quietLogger())
			if err != nil {
				t.Fatalf("provider: %v", err)
			}
			ds, err := p.Load(context.Background())
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if ds.Len() != 5 {
				t.Fatalf("rows=%d want 5", ds.Len())
			}
			c, _ := ds.Column("precio")
			if c.Type() != dataset.Float {
				t.Fatalf("precio type=%s, contract declares float", c.Type())
			}
		})
	}
}

func TestNewProvider_ConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  app.SourceConfig
	}{
		{name: "no base url", cfg: app.SourceConfig{}},
		{name: "unknown format", cfg: app.SourceConfig{Env: api.Env{BaseURL: "http://localhost:1"}, Format: "xml"}},
		{name: "missing schema", cfg: app.SourceConfig{CSVPath: "x.csv", SchemaPath: filepath.Join(t.TempDir(), "nope.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := app.NewProvider(tt.cfg, quietLogger()); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewHandler_ServesDashboardAgainstMock(t *testing.T) {
	t.Parallel()

	mock, ts := startMock(t, "")
	p, err := app.NewProvider(app.SourceConfig{Env: api.Env{BaseURL: ts.URL}, PageSize: 2, Fetch: fastFetch()}, quietLogger())
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	h, err := app.NewHandler(p, app.ServeConfig{}, quietLogger())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	dash := httptest.NewServer(h)
	defer dash.Close()

	resp, err := http.Get(dash.URL + "/charts/download.csv?kind=histogram&x=habitaciones&xmin=3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	want := "barrio,precio,habitaciones\nnorte,200,3\noeste,250,4\n"
	if string(body) != want {
		t.Fatalf("csv=%q want %q", body, want)
	}
	// 5 rows at page size 2 is 3 pages.
	if got := len(mock.Calls()); got != 3 {
		t.Fatalf("expected 3 API calls, got %d", got)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	p := provider.NewCSVFileProvider(filepath.Join(t.TempDir(), "missing.csv"), nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Serve(ctx, p, app.ServeConfig{Addr: "127.0.0.1:0"}, quietLogger())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
