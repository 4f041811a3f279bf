package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shpitdev/datadash/internal/app"
	"github.com/shpitdev/datadash/internal/intro"
	"github.com/shpitdev/datadash/internal/intro/gemini"
	"github.com/shpitdev/datadash/internal/logging"
	"github.com/shpitdev/datadash/internal/version"
	"github.com/shpitdev/datadash/pkg/api"
	"github.com/shpitdev/datadash/pkg/chart"
	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/pipeline/redact"
	"github.com/shpitdev/datadash/pkg/pipeline/view"
	"github.com/shpitdev/datadash/pkg/pipeline/worker"
	"github.com/shpitdev/datadash/pkg/provider"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
		return
	case "serve":
		code = runServe(ctx, os.Args[2:])
	case "export":
		code = runExport(ctx, os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

// sourceFlags registers the flags shared by serve and export.
type sourceFlags struct {
	csvPath    string
	format     string
	schemaPath string
	pageSize   int
	workers    int
	maxRetries int
	timeout    time.Duration
	rps        float64
	logLevel   string
	logFormat  string
}

func (f *sourceFlags) register(fs *flag.FlagSet, env sourceEnv) {
	fs.StringVar(&f.csvPath, "csv", "", "Read a local CSV file instead of the API")
	fs.StringVar(&f.format, "format", env.Format, "API format: json (paginated records) or csv (env: DATA_FORMAT)")
	fs.StringVar(&f.schemaPath, "schema", env.SchemaPath, "Optional YAML file pinning column types (env: DATASET_SCHEMA)")
	fs.IntVar(&f.pageSize, "page-size", env.PageSize, "Records per API page (env: DATA_PAGE_SIZE)")
	fs.IntVar(&f.workers, "workers", env.Fetch.Workers, "Concurrent page fetches (env: FETCH_WORKERS)")
	fs.IntVar(&f.maxRetries, "max-retries", env.Fetch.MaxRetries, "Max retries per page for transient failures (env: FETCH_MAX_RETRIES)")
	fs.DurationVar(&f.timeout, "request-timeout", env.Fetch.RequestTimeout, "Per-page request timeout (env: FETCH_TIMEOUT)")
	fs.Float64Var(&f.rps, "rate-limit-rps", env.Fetch.RateLimitRPS, "Global page fetch rate limit (RPS), 0 disables (env: FETCH_RATE_LIMIT_RPS)")
	fs.StringVar(&f.logLevel, "log-level", env.LogLevel, "DEBUG, INFO, WARN or ERROR (env: LOG_LEVEL)")
	fs.StringVar(&f.logFormat, "log-format", env.LogFormat, "text or json (env: LOG_FORMAT)")
}

func (f *sourceFlags) config() (app.SourceConfig, error) {
	cfg := app.SourceConfig{
		Format:     f.format,
		CSVPath:    f.csvPath,
		SchemaPath: f.schemaPath,
		PageSize:   f.pageSize,
		Fetch: worker.Options{
			Workers:        f.workers,
			MaxRetries:     f.maxRetries,
			RequestTimeout: f.timeout,
			RateLimitRPS:   f.rps,
		},
	}
	if f.csvPath != "" {
		return cfg, nil
	}
	env, err := api.LoadEnv()
	if err != nil {
		return app.SourceConfig{}, err
	}
	cfg.Env = env
	return cfg, nil
}

func (f *sourceFlags) logger() *slog.Logger {
	logging.Init(logging.Config{Level: f.logLevel, Format: f.logFormat})
	return logging.Get()
}

func runServe(ctx context.Context, args []string) int {
	env, err := loadSourceEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	addr := defaultString("LISTEN_ADDR", ":8501")
	rpm, err := envInt("RATE_LIMIT_RPM", 0)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	maxSessions, err := envInt("MAX_SESSIONS", provider.DefaultMaxSessions)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var src sourceFlags
	src.register(fs, env)
	fs.StringVar(&addr, "addr", addr, "Listen address (env: LISTEN_ADDR)")
	fs.IntVar(&rpm, "rate-limit-rpm", rpm, "Requests per minute per client IP, 0 disables (env: RATE_LIMIT_RPM)")
	fs.IntVar(&maxSessions, "max-sessions", maxSessions, "Session datasets kept in memory (env: MAX_SESSIONS)")
	geminiModel := fs.String("gemini-model", strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "Gemini model for the introduction page (env: GEMINI_MODEL)")
	geminiBaseURL := fs.String("gemini-base-url", strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")), "Gemini API base URL override (env: GEMINI_BASE_URL)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := src.logger()
	cfg, err := src.config()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	p, err := app.NewProvider(cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	var describer intro.Describer = intro.Static{}
	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:     key,
			Model:      *geminiModel,
			BaseURL:    *geminiBaseURL,
			MaxRetries: 2,
		})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "gemini config error: %s\n", redact.Secrets(err.Error()))
			return 2
		}
		describer = intro.WithFallback(g, intro.Static{}, logger)
	}

	if err := app.Serve(ctx, p, app.ServeConfig{
		Addr:         addr,
		RateLimitRPM: rpm,
		MaxSessions:  maxSessions,
		Describer:    describer,
	}, logger); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "serve failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func runExport(ctx context.Context, args []string) int {
	env, err := loadSourceEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var src sourceFlags
	src.register(fs, env)
	outDir := fs.String("out-dir", ".", "Directory for datos_filtrados.csv and grafico.png")
	kind := fs.String("kind", "bar", "Chart kind: bar, scatter, line, histogram or pie")
	x := fs.String("x", "", "X column (default: first numeric column)")
	y := fs.String("y", "", "Y column (default: first numeric column)")
	xRange := fs.String("x-range", "", "Inclusive X range as min:max; either end may be empty")
	yRange := fs.String("y-range", "", "Inclusive Y range as min:max; either end may be empty")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	k, err := chart.ParseKind(*kind)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	}
	sel := view.Selection{Kind: k, X: strings.TrimSpace(*x), Y: strings.TrimSpace(*y)}
	if sel.XRange, err = parseRangeFlag("x-range", *xRange); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	}
	if sel.YRange, err = parseRangeFlag("y-range", *yRange); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	}

	logger := src.logger()
	cfg, err := src.config()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	p, err := app.NewProvider(cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	res, err := app.RunExport(ctx, p, sel, *outDir, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "export failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s\n%s\n", res.CSVPath, res.PNGPath)
	return 0
}

// parseRangeFlag parses "min:max". An empty value means the full column range.
func parseRangeFlag(name, raw string) (*dataset.Range, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	lo, hi, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("invalid --%s=%q: want min:max", name, raw)
	}
	r := dataset.Range{Min: math.Inf(-1), Max: math.Inf(1)}
	var err error
	if s := strings.TrimSpace(lo); s != "" {
		if r.Min, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("invalid --%s min %q: %w", name, s, err)
		}
	}
	if s := strings.TrimSpace(hi); s != "" {
		if r.Max, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("invalid --%s max %q: %w", name, s, err)
		}
	}
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) {
		return nil, fmt.Errorf("invalid --%s=%q: NaN is not a bound", name, raw)
	}
	return &r, nil
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `datadash: interactive data dashboard (serve + headless export)

Usage:
  datadash <command> [flags]

Commands:
  serve    Serve the dashboard over HTTP
  export   Load, filter and render once; write datos_filtrados.csv and grafico.png
  version  Print the version

Examples:
  datadash serve --addr :8501
  datadash export --kind scatter --x precio --y habitaciones --x-range 100:500 --out-dir out
  datadash export --csv data.csv --kind histogram --x precio

Environment (data source):
  DATA_API_URL          Records API base URL (required unless --csv)
  DATA_API_TOKEN        Bearer token, or a file path containing it (optional)
  DEFAULT_CA_PATH       PEM bundle to trust for TLS (optional)
  DATA_FORMAT           json (paginated /records) or csv (/records.csv)
  DATA_PAGE_SIZE        Records per page (default 500)
  DATASET_SCHEMA        YAML file pinning column types (optional)
  FETCH_WORKERS, FETCH_MAX_RETRIES, FETCH_TIMEOUT, FETCH_RATE_LIMIT_RPS

Environment (serve):
  LISTEN_ADDR           Listen address (default :8501)
  RATE_LIMIT_RPM        Requests per minute per client IP (default 0, disabled)
  MAX_SESSIONS          Session datasets kept in memory, least recently used dropped (default 64)
  GEMINI_API_KEY        Enables Gemini-written introductions (optional)
  GEMINI_MODEL          Gemini model name
  GEMINI_BASE_URL       Optional base URL override (proxies/testing)

Environment (logging):
  LOG_LEVEL             DEBUG, INFO, WARN, ERROR (default INFO)
  LOG_FORMAT            text or json (default text)

`)
}
