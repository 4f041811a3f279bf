package dashboard

import (
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shpitdev/datadash/internal/intro"
	"github.com/shpitdev/datadash/pkg/chart"
	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/export"
	"github.com/shpitdev/datadash/pkg/pipeline/redact"
	"github.com/shpitdev/datadash/pkg/pipeline/view"
)

type tableData struct {
	Header []string
	Rows   [][]string
}

func newTable(ds *dataset.Dataset) *tableData {
	t := &tableData{Header: ds.Names(), Rows: make([][]string, ds.Len())}
	for i := range t.Rows {
		t.Rows[i] = ds.Row(i)
	}
	return t
}

type option struct {
	Name     string
	Selected bool
}

func options(names []string, selected ...string) []option {
	out := make([]option, len(names))
	for i, n := range names {
		out[i] = option{Name: n, Selected: slices.Contains(selected, n)}
	}
	return out
}

// load returns the session's dataset, logging failures with the session id.
func (s *Server) load(c *gin.Context) (*dataset.Dataset, error) {
	ds, err := s.cache.Get(c.Request.Context(), cacheKey(c))
	if err != nil {
		s.logger.Warn("dataset load failed", "session", sessionID(c), "err", redact.Secrets(err.Error()))
	}
	return ds, err
}

type homePage struct {
	layout
	Loaded        bool
	Rows, Columns int
}

func (s *Server) home(c *gin.Context) {
	p := homePage{layout: newLayout("home")}
	ds, err := s.load(c)
	if err != nil {
		p.Error = userMessage(err)
	} else {
		p.Loaded, p.Rows, p.Columns = true, ds.Len(), ds.Width()
	}
	s.render(c, "home", p)
}

type introPage struct {
	layout
	Intro *intro.Intro
}

func (s *Server) intro(c *gin.Context) {
	p := introPage{layout: newLayout("intro")}
	ds, err := s.load(c)
	if err != nil {
		p.Error = userMessage(err)
		s.render(c, "intro", p)
		return
	}
	in, err := s.describer.Describe(c.Request.Context(), ds)
	if err != nil {
		p.Error = userMessage(err)
	} else {
		p.Intro = &in
	}
	s.render(c, "intro", p)
}

type dataPage struct {
	layout
	Loaded       bool
	Summary      []dataset.ColumnSummary
	Options      []option
	Table        *tableData
	Shown, Total int
	Limit        int
	MaxRows      int
}

func (s *Server) data(c *gin.Context) {
	p := dataPage{layout: newLayout("data"), MaxRows: MaxPreviewRows}
	ds, err := s.load(c)
	if err != nil {
		p.Error = userMessage(err)
		s.render(c, "data", p)
		return
	}

	p.Limit = previewRows(c.Query("rows"))
	var picked []string
	for _, name := range c.QueryArray("columns") {
		if _, ok := ds.Column(name); ok && !slices.Contains(picked, name) {
			picked = append(picked, name)
		}
	}
	shown := ds
	if len(picked) > 0 {
		if shown, err = ds.Select(picked...); err != nil {
			p.Error = userMessage(err)
			s.render(c, "data", p)
			return
		}
	}
	head := shown.Head(p.Limit)

	p.Loaded = true
	p.Summary = dataset.Summarize(ds)
	p.Options = options(ds.Names(), picked...)
	p.Table = newTable(head)
	p.Shown, p.Total = head.Len(), ds.Len()
	s.render(c, "data", p)
}

// previewRows parses the rows parameter, defaulting and clamping it.
func previewRows(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return DefaultPreviewRows
	}
	return min(n, MaxPreviewRows)
}

type kindOption struct {
	Value    string
	Label    string
	Selected bool
}

type slider struct {
	Column string
	Bounds dataset.Range
	Value  dataset.Range
}

type chartsPage struct {
	layout
	Loaded             bool
	Kinds              []kindOption
	XOptions, YOptions []option
	XSlider, YSlider   *slider

	Table        *tableData
	Shown, Total int
	ChartTitle   string
	CSVURL       string
	ImageURL     string
	PNGURL       string
}

func (s *Server) charts(c *gin.Context) {
	p := chartsPage{layout: newLayout("charts")}
	ds, err := s.load(c)
	if err != nil {
		p.Error = userMessage(err)
		s.render(c, "charts", p)
		return
	}
	p.Loaded = true

	sel, err := parseSelection(c.Request.URL.Query())
	if err != nil {
		p.Error = userMessage(err)
		p.fillSelectors(dataset.NumericColumns(ds), sel, nil)
		s.render(c, "charts", p)
		return
	}
	res, err := s.runView(ds, sel)
	if err != nil {
		p.Error = userMessage(err)
		p.fillSelectors(dataset.NumericColumns(ds), sel, nil)
		s.render(c, "charts", p)
		return
	}

	p.fillSelectors(res.Numeric, res.Selection, res)
	head := res.View.Head(MaxChartTableRows)
	p.Table = newTable(head)
	p.Shown, p.Total = head.Len(), res.View.Len()
	p.ChartTitle = res.Chart.Title
	q := encodeSelection(res.Selection).Encode()
	p.CSVURL = "/charts/download.csv?" + q
	p.ImageURL = "/charts/image.png?" + q
	p.PNGURL = "/charts/download.png?" + q
	s.render(c, "charts", p)
}

func (p *chartsPage) fillSelectors(numeric []string, sel view.Selection, res *view.Result) {
	for _, k := range chart.Kinds() {
		p.Kinds = append(p.Kinds, kindOption{Value: k.String(), Label: k.Label(), Selected: k == sel.Kind})
	}
	p.XOptions = options(numeric, sel.X)
	p.YOptions = options(numeric, sel.Y)
	if res == nil {
		return
	}
	if sel.XRange != nil {
		p.XSlider = &slider{Column: sel.X, Bounds: res.XBounds, Value: *sel.XRange}
	}
	if sel.YRange != nil {
		p.YSlider = &slider{Column: sel.Y, Bounds: res.YBounds, Value: *sel.YRange}
	}
}

func (s *Server) runView(ds *dataset.Dataset, sel view.Selection) (*view.Result, error) {
	res, err := view.Run(ds, sel)
	status := "ok"
	if err != nil {
		status = "error"
	}
	chartsTotal.WithLabelValues(sel.Kind.String(), status).Inc()
	return res, err
}

// result loads the dataset and runs the selection in the request query.
func (s *Server) result(c *gin.Context) (*view.Result, error) {
	ds, err := s.load(c)
	if err != nil {
		return nil, err
	}
	sel, err := parseSelection(c.Request.URL.Query())
	if err != nil {
		return nil, err
	}
	return s.runView(ds, sel)
}

func (s *Server) fail(c *gin.Context, err error) {
	c.String(statusFor(err), userMessage(err))
}

func (s *Server) chartImage(c *gin.Context) {
	res, err := s.result(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := export.ToPNG(res.Chart)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, export.PNGMIMEType, data)
}

func (s *Server) downloadCSV(c *gin.Context) {
	res, err := s.result(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	a, err := export.CSVArtifact(res.View)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.attach(c, a, "csv")
}

func (s *Server) downloadPNG(c *gin.Context) {
	res, err := s.result(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	a, err := export.PNGArtifact(res.Chart)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.attach(c, a, "png")
}

func (s *Server) attach(c *gin.Context, a export.Artifact, format string) {
	exportsTotal.WithLabelValues(format).Inc()
	c.Header("Content-Disposition", `attachment; filename="`+a.Filename+`"`)
	c.Data(http.StatusOK, a.MIMEType, a.Data)
}

// parseSelection reads kind, x, y and the xmin/xmax/ymin/ymax bounds. A
// missing kind is Bar; a range with one end set leaves the other open.
func parseSelection(q url.Values) (view.Selection, error) {
	sel := view.Selection{
		Kind: chart.Bar,
		X:    strings.TrimSpace(q.Get("x")),
		Y:    strings.TrimSpace(q.Get("y")),
	}
	if raw := strings.TrimSpace(q.Get("kind")); raw != "" {
		k, err := chart.ParseKind(raw)
		if err != nil {
			return sel, err
		}
		sel.Kind = k
	}
	var err error
	if sel.XRange, err = parseRange(q, "xmin", "xmax"); err != nil {
		return sel, err
	}
	if sel.YRange, err = parseRange(q, "ymin", "ymax"); err != nil {
		return sel, err
	}
	return sel, nil
}

func parseRange(q url.Values, loKey, hiKey string) (*dataset.Range, error) {
	lo, hi := strings.TrimSpace(q.Get(loKey)), strings.TrimSpace(q.Get(hiKey))
	if lo == "" && hi == "" {
		return nil, nil
	}
	r := dataset.Range{Min: math.Inf(-1), Max: math.Inf(1)}
	var err error
	if lo != "" {
		if r.Min, err = parseFloat(loKey, lo); err != nil {
			return nil, err
		}
	}
	if hi != "" {
		if r.Max, err = parseFloat(hiKey, hi); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func parseFloat(key, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return 0, &queryError{Param: key, Value: raw}
	}
	return v, nil
}

func encodeSelection(sel view.Selection) url.Values {
	q := url.Values{}
	q.Set("kind", sel.Kind.String())
	q.Set("x", sel.X)
	q.Set("y", sel.Y)
	if sel.XRange != nil {
		q.Set("xmin", formatNumber(sel.XRange.Min))
		q.Set("xmax", formatNumber(sel.XRange.Max))
	}
	if sel.YRange != nil {
		q.Set("ymin", formatNumber(sel.YRange.Min))
		q.Set("ymax", formatNumber(sel.YRange.Max))
	}
	return q
}
