// Package app wires configuration into providers, the dashboard and the
// headless export run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shpitdev/datadash/internal/dashboard"
	"github.com/shpitdev/datadash/internal/intro"
	"github.com/shpitdev/datadash/pkg/api"
	"github.com/shpitdev/datadash/pkg/export"
	"github.com/shpitdev/datadash/pkg/pipeline/schema"
	"github.com/shpitdev/datadash/pkg/pipeline/view"
	"github.com/shpitdev/datadash/pkg/pipeline/worker"
	"github.com/shpitdev/datadash/pkg/provider"
)

const (
	// FormatJSON reads the paginated JSON records endpoint.
	FormatJSON = "json"
	// FormatCSV reads the single-shot CSV export endpoint.
	FormatCSV = "csv"
)

// SourceConfig selects where the dataset comes from. A non-empty CSVPath
// reads a local file; otherwise the API described by Env is used.
type SourceConfig struct {
	Env        api.Env
	Format     string
	CSVPath    string
	PageSize   int
	Fetch      worker.Options
	SchemaPath string
}

// NewProvider builds the Data Provider described by cfg.
func NewProvider(cfg SourceConfig, logger *slog.Logger) (provider.Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var contract *schema.Contract
	if strings.TrimSpace(cfg.SchemaPath) != "" {
		c, err := schema.LoadFile(cfg.SchemaPath)
		if err != nil {
			return nil, err
		}
		contract = &c
	}

	if strings.TrimSpace(cfg.CSVPath) != "" {
		return provider.NewCSVFileProvider(cfg.CSVPath, contract, logger), nil
	}

	client, err := cfg.Env.NewClient()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", FormatJSON:
		return provider.NewAPIProvider(client, provider.APIOptions{
			PageSize: cfg.PageSize,
			Fetch:    cfg.Fetch,
			Contract: contract,
			Logger:   logger,
		}), nil
	case FormatCSV:
		return provider.NewCSVAPIProvider(client, contract, logger), nil
	default:
		return nil, fmt.Errorf("unknown data format %q (want %s or %s)", cfg.Format, FormatJSON, FormatCSV)
	}
}

// ServeConfig configures the dashboard HTTP server.
type ServeConfig struct {
	Addr           string
	RateLimitRPM   int
	RateLimitBurst int
	// MaxSessions bounds the per-session dataset cache; 0 means
	// provider.DefaultMaxSessions.
	MaxSessions int
	Describer   intro.Describer
}

// NewHandler builds the dashboard handler over a per-session cache of p.
func NewHandler(p provider.Provider, cfg ServeConfig, logger *slog.Logger) (http.Handler, error) {
	srv, err := dashboard.New(dashboard.Options{
		Cache:          provider.NewBoundedCache(p, cfg.MaxSessions),
		Describer:      cfg.Describer,
		Logger:         logger,
		RateLimitRPM:   cfg.RateLimitRPM,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	if err != nil {
		return nil, err
	}
	return srv.Handler(), nil
}

// Serve runs the dashboard until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, p provider.Provider, cfg ServeConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	h, err := NewHandler(p, cfg, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ExportResult names the files written by RunExport.
type ExportResult struct {
	CSVPath string
	PNGPath string
	Rows    int
}

// RunExport loads the dataset once, applies sel and writes
// datos_filtrados.csv and grafico.png into outDir.
func RunExport(ctx context.Context, p provider.Provider, sel view.Selection, outDir string, logger *slog.Logger) (ExportResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	logger = logger.With("run", runID)
	if strings.TrimSpace(outDir) == "" {
		return ExportResult{}, fmt.Errorf("output directory is required")
	}

	loadStart := time.Now()
	ds, err := p.Load(ctx)
	if err != nil {
		return ExportResult{}, err
	}
	logger.Info("loaded dataset", "rows", ds.Len(), "columns", ds.Width(), "duration", time.Since(loadStart).Round(time.Millisecond))

	res, err := view.Run(ds, sel)
	if err != nil {
		return ExportResult{}, err
	}
	logger.Info("filtered view",
		"kind", res.Selection.Kind.String(),
		"x", res.Selection.X,
		"y", res.Selection.Y,
		"rows", res.View.Len(),
	)

	csvArt, err := export.CSVArtifact(res.View)
	if err != nil {
		return ExportResult{}, err
	}
	pngArt, err := export.PNGArtifact(res.Chart)
	if err != nil {
		return ExportResult{}, err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ExportResult{}, fmt.Errorf("create output directory: %w", err)
	}
	out := ExportResult{Rows: res.View.Len()}
	for _, a := range []export.Artifact{csvArt, pngArt} {
		path := filepath.Join(outDir, a.Filename)
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return ExportResult{}, fmt.Errorf("write %s: %w", a.Filename, err)
		}
		logger.Info("wrote artifact", "path", path, "bytes", len(a.Data), "mime", a.MIMEType)
		if a.Filename == export.CSVFilename {
			out.CSVPath = path
		} else {
			out.PNGPath = path
		}
	}
	return out, nil
}
