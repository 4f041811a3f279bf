package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/shpitdev/datadash/pkg/chart"
)

const (
	Width  = 1024
	Height = 576

	// MaxWidth caps the canvas however many bars a chart has.
	MaxWidth = 4096

	// MaxValues is the most bars or wedges drawn; the least frequent values
	// beyond it share one "otros" entry.
	MaxValues = 200
)

const otherLabel = "otros"

var (
	barColor   = drawing.ColorFromHex("1f77b4")
	pointColor = drawing.ColorFromHex("ff7f0e")
)

// ToPNG rasterizes h. Charts with nothing to draw become a blank canvas that
// carries the title.
func ToPNG(h *chart.Handle) ([]byte, error) {
	if h == nil {
		return nil, fmt.Errorf("export png: nil chart")
	}
	if h.Empty() {
		return blank(h.Title + " (sin datos)")
	}

	var buf bytes.Buffer
	var err error
	switch h.Spec.Kind {
	case chart.Bar, chart.Histogram:
		err = renderBars(h, &buf)
	case chart.Scatter, chart.Line:
		err = renderPoints(h, &buf)
	case chart.Pie:
		err = renderPie(h, &buf)
	default:
		return nil, &chart.UnsupportedChartError{Kind: h.Spec.Kind.String(), Reason: "no rasterizer"}
	}
	if err != nil {
		return nil, fmt.Errorf("export png %s: %w", h.Spec.Kind, err)
	}
	return buf.Bytes(), nil
}

func renderBars(h *chart.Handle, buf *bytes.Buffer) error {
	bars := make([]gochart.Value, 0, len(h.Bars))
	for _, b := range h.Bars {
		bars = append(bars, gochart.Value{Value: float64(b.Count), Label: b.Label})
	}
	bars = foldTail(bars, MaxValues)
	maxCount := 1.0
	for _, b := range bars {
		maxCount = math.Max(maxCount, b.Value)
	}

	// go-chart lays bars out at BarWidth+BarSpacing each, so size both to fit.
	width := Width
	if need := len(bars)*4 + 120; need > width {
		width = min(need, MaxWidth)
	}
	slot := (width - 120) / len(bars)
	barWidth := slot * 2 / 3
	if barWidth < 1 {
		barWidth = 1
	}
	spacing := slot - barWidth
	if spacing < 1 {
		spacing = 1
	}
	if h.Spec.Kind == chart.Histogram && slot > 2 {
		barWidth, spacing = slot-1, 1
	}

	bc := gochart.BarChart{
		Title:      h.Title,
		Width:      width,
		Height:     Height,
		BarWidth:   barWidth,
		BarSpacing: spacing,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis: gochart.YAxis{
			Name:  h.YLabel,
			Range: &gochart.ContinuousRange{Min: 0, Max: maxCount * 1.05},
		},
		Bars: bars,
	}
	for i := range bc.Bars {
		bc.Bars[i].Style = gochart.Style{FillColor: barColor, StrokeColor: barColor}
	}
	return bc.Render(gochart.PNG, buf)
}

func renderPoints(h *chart.Handle, buf *bytes.Buffer) error {
	xs := make([]float64, len(h.Points))
	ys := make([]float64, len(h.Points))
	for i, p := range h.Points {
		xs[i], ys[i] = p.X, p.Y
	}

	style := gochart.Style{StrokeWidth: 2, StrokeColor: barColor}
	if h.Spec.Kind == chart.Scatter {
		style = gochart.Style{StrokeWidth: gochart.Disabled, DotWidth: 4, DotColor: pointColor}
	}
	if len(xs) == 1 {
		style.DotWidth = 6
		style.DotColor = pointColor
	}

	ch := gochart.Chart{
		Title:      h.Title,
		Width:      Width,
		Height:     Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      gochart.XAxis{Name: h.XLabel, Range: paddedRange(xs)},
		YAxis:      gochart.YAxis{Name: h.YLabel, Range: paddedRange(ys)},
		Series: []gochart.Series{
			gochart.ContinuousSeries{Name: h.YLabel, XValues: xs, YValues: ys, Style: style},
		},
	}
	return ch.Render(gochart.PNG, buf)
}

func renderPie(h *chart.Handle, buf *bytes.Buffer) error {
	values := make([]gochart.Value, 0, len(h.Wedges))
	for _, w := range h.Wedges {
		values = append(values, gochart.Value{Value: float64(w.Count), Label: w.Label})
	}
	pc := gochart.PieChart{
		Title:  h.Title,
		Width:  Height,
		Height: Height,
		Values: foldTail(values, MaxValues),
	}
	return pc.Render(gochart.PNG, buf)
}

// foldTail keeps the first n-1 values and sums the rest into one "otros"
// value. vals must be ordered most frequent first.
func foldTail(vals []gochart.Value, n int) []gochart.Value {
	if n < 2 || len(vals) <= n {
		return vals
	}
	var rest float64
	for _, v := range vals[n-1:] {
		rest += v.Value
	}
	out := make([]gochart.Value, n)
	copy(out, vals[:n-1])
	out[n-1] = gochart.Value{Value: rest, Label: otherLabel}
	return out
}

// paddedRange returns a range with non-zero width around vals. go-chart
// refuses to draw a zero-delta axis.
func paddedRange(vals []float64) *gochart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(lo)*0.05, 0.5)
	}
	return &gochart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func blank(title string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.RGBA{R: 60, G: 60, B: 60, A: 255}), Face: face}
	tw := d.MeasureString(title).Ceil()
	x := (Width - tw) / 2
	if x < 8 {
		x = 8
	}
	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(Height / 2)}
	d.DrawString(title)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("export png: encode blank: %w", err)
	}
	return buf.Bytes(), nil
}
