package chart

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/shpitdev/datadash/pkg/dataset"
)

// HistogramBins is the fixed number of equal-width histogram buckets.
const HistogramBins = 30

// Spec is the (kind, x, y) tuple describing a requested visualization.
// An empty Y means unset.
type Spec struct {
	Kind Kind
	X    string
	Y    string
}

// BarValue is one bar: a distinct value and its count, or a histogram bucket.
type BarValue struct {
	Label string
	Count int
	// Lo and Hi are the bucket edges; only set for histograms.
	Lo, Hi float64
}

// Point is one (x, y) pair.
type Point struct {
	X, Y float64
}

// Wedge is one pie slice.
type Wedge struct {
	Value string
	Count int
	Share float64
	Label string
}

// Handle is a rendered chart: everything needed to display or rasterize it.
type Handle struct {
	Spec   Spec
	Title  string
	XLabel string
	YLabel string

	Bars   []BarValue
	Points []Point
	Wedges []Wedge
}

// Empty reports whether the chart has nothing to draw.
func (h *Handle) Empty() bool {
	switch h.Spec.Kind {
	case Bar:
		return len(h.Bars) == 0
	case Histogram:
		for _, b := range h.Bars {
			if b.Count > 0 {
				return false
			}
		}
		return true
	case Scatter, Line:
		return len(h.Points) == 0
	case Pie:
		return len(h.Wedges) == 0
	}
	return true
}

// Render builds the chart of the given kind over view. y may be empty for kinds
// that only use x. Zero-row views produce empty charts, not errors.
func Render(kind Kind, view *dataset.Dataset, x, y string) (*Handle, error) {
	if !kind.valid() {
		return nil, &UnsupportedChartError{Kind: kind.String(), Reason: "unrecognized chart kind"}
	}
	if kind.NeedsY() && y == "" {
		return nil, &UnsupportedChartError{Kind: kind.Label(), Reason: "a Y column is required"}
	}
	xc, ok := view.Column(x)
	if !ok {
		return nil, fmt.Errorf("render %s: unknown x column %q", kind, x)
	}

	h := &Handle{Spec: Spec{Kind: kind, X: x, Y: y}}
	switch kind {
	case Bar:
		h.Title = "Gráfico de Barras: " + x
		h.XLabel, h.YLabel = x, "Frecuencia"
		for _, vc := range valueCounts(xc) {
			h.Bars = append(h.Bars, BarValue{Label: vc.value, Count: vc.count})
		}
	case Scatter, Line:
		yc, ok := view.Column(y)
		if !ok {
			return nil, fmt.Errorf("render %s: unknown y column %q", kind, y)
		}
		if !xc.Type().IsNumeric() || !yc.Type().IsNumeric() {
			return nil, &UnsupportedChartError{Kind: kind.Label(), Reason: "x and y must be numeric columns"}
		}
		if kind == Scatter {
			h.Title = fmt.Sprintf("Gráfico de Dispersión: %s vs %s", x, y)
		} else {
			h.Title = fmt.Sprintf("Gráfico de Línea: %s vs %s", x, y)
		}
		h.XLabel, h.YLabel = x, y
		h.Points = points(xc, yc)
	case Histogram:
		if !xc.Type().IsNumeric() {
			return nil, &UnsupportedChartError{Kind: kind.Label(), Reason: "x must be a numeric column"}
		}
		h.Title = "Histograma de " + x
		h.XLabel, h.YLabel = x, "Frecuencia"
		h.Bars = histogram(xc, HistogramBins)
	case Pie:
		h.Title = "Gráfico de Pastel de " + x
		h.XLabel = x
		h.Wedges = wedges(valueCounts(xc))
	}
	return h, nil
}

type valueCount struct {
	value string
	count int
}

// valueCounts groups valid cells by value, most frequent first; ties keep
// first-appearance order.
func valueCounts(c dataset.Column) []valueCount {
	idx := make(map[string]int)
	var out []valueCount
	for i := 0; i < c.Len(); i++ {
		if !c.Valid(i) {
			continue
		}
		v := c.String(i)
		j, ok := idx[v]
		if !ok {
			idx[v] = len(out)
			out = append(out, valueCount{value: v})
			j = len(out) - 1
		}
		out[j].count++
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].count > out[b].count
	})
	return out
}

func points(xc, yc dataset.Column) []Point {
	var out []Point
	for i := 0; i < xc.Len(); i++ {
		xv, okx := xc.Float(i)
		yv, oky := yc.Float(i)
		if okx && oky {
			out = append(out, Point{X: xv, Y: yv})
		}
	}
	return out
}

// histogram buckets valid values into n equal-width bins over the observed
// range. The last bin is closed on the right. A single distinct value v uses
// the range [v-0.5, v+0.5].
func histogram(c dataset.Column, n int) []BarValue {
	var vals []float64
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Float(i); ok {
			vals = append(vals, v)
		}
	}

	lo, hi := 0.0, 1.0
	if len(vals) > 0 {
		lo, hi = vals[0], vals[0]
		for _, v := range vals[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if lo == hi {
			lo, hi = lo-0.5, hi+0.5
		}
	}

	width := (hi - lo) / float64(n)
	bins := make([]BarValue, n)
	for i := range bins {
		bins[i].Lo = lo + float64(i)*width
		bins[i].Hi = lo + float64(i+1)*width
		bins[i].Label = strconv.FormatFloat(bins[i].Lo, 'g', 4, 64)
	}
	bins[n-1].Hi = hi

	for _, v := range vals {
		i := int((v - lo) / (hi - lo) * float64(n))
		if i >= n {
			i = n - 1
		}
		if i < 0 {
			i = 0
		}
		bins[i].Count++
	}
	return bins
}

func wedges(counts []valueCount) []Wedge {
	total := 0
	for _, vc := range counts {
		total += vc.count
	}
	out := make([]Wedge, 0, len(counts))
	for _, vc := range counts {
		share := float64(vc.count) / float64(total)
		out = append(out, Wedge{
			Value: vc.value,
			Count: vc.count,
			Share: share,
			Label: fmt.Sprintf("%s (%.1f%%)", vc.value, share*100),
		})
	}
	return out
}
