// Package dashboard serves the datadash pages over HTTP with gin.
package dashboard

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shpitdev/datadash/internal/intro"
	"github.com/shpitdev/datadash/internal/version"
	"github.com/shpitdev/datadash/pkg/provider"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	// DefaultPreviewRows is the /data preview size when rows is unset.
	DefaultPreviewRows = 20
	// MaxPreviewRows caps the /data preview.
	MaxPreviewRows = 500
	// MaxChartTableRows caps the filtered table shown on /charts.
	MaxChartTableRows = 200
)

type Options struct {
	Cache     *provider.Cache
	Describer intro.Describer
	Logger    *slog.Logger

	// RateLimitRPM limits requests per client IP per minute. 0 disables it.
	RateLimitRPM   int
	RateLimitBurst int
}

type Server struct {
	cache     *provider.Cache
	describer intro.Describer
	logger    *slog.Logger
	pages     map[string]*template.Template
	engine    *gin.Engine
}

var pageTitles = []struct {
	name, href, title string
}{
	{"home", "/", "App"},
	{"intro", "/intro", "Introducción"},
	{"data", "/data", "Interacción con los Datos"},
	{"charts", "/charts", "Gráficos Interactivos"},
}

func New(opts Options) (*Server, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("dashboard: cache is required")
	}
	if opts.Describer == nil {
		opts.Describer = intro.Static{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		cache:     opts.Cache,
		describer: opts.Describer,
		logger:    opts.Logger,
		pages:     make(map[string]*template.Template, len(pageTitles)),
	}
	funcs := template.FuncMap{"num": formatNumber}
	for _, p := range pageTitles {
		t, err := template.New(p.name).Funcs(funcs).ParseFS(templateFS, "templates/layout.tmpl", "templates/"+p.name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("dashboard: parse %s template: %w", p.name, err)
		}
		s.pages[p.name] = t
	}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(s.logger), metricsMiddleware())
	if opts.RateLimitRPM > 0 {
		r.Use(rateLimitMiddleware(opts.RateLimitRPM, opts.RateLimitBurst))
	}

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pages := r.Group("/", sessionMiddleware())
	pages.GET("/", s.home)
	pages.GET("/intro", s.intro)
	pages.GET("/data", s.data)
	pages.GET("/charts", s.charts)
	pages.GET("/charts/image.png", s.chartImage)
	pages.GET("/charts/download.csv", s.downloadCSV)
	pages.GET("/charts/download.png", s.downloadPNG)

	s.engine = r
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  version.Current,
		"sessions": s.cache.Sessions(),
	})
}

type navLink struct {
	Href   string
	Label  string
	Active bool
}

// layout carries the fields every page template reads.
type layout struct {
	Title string
	Error string
	Nav   []navLink
}

func newLayout(page string) layout {
	l := layout{}
	for _, p := range pageTitles {
		l.Nav = append(l.Nav, navLink{Href: p.href, Label: p.title, Active: p.name == page})
		if p.name == page {
			l.Title = p.title
		}
	}
	return l
}

// render executes a page into a buffer so template failures never send a
// partial 200.
func (s *Server) render(c *gin.Context, page string, data any) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("render page", "page", page, "err", err)
		c.String(http.StatusInternalServerError, "error interno")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
