// Package view runs one dashboard interaction: resolve the chart selection
// against a dataset, filter it and render the chart.
package view

import (
	"math"
	"slices"

	"github.com/shpitdev/datadash/pkg/chart"
	"github.com/shpitdev/datadash/pkg/dataset"
)

// Selection is what the user picked. Empty X or Y means the first numeric
// column; a nil range means the column's full bounds.
type Selection struct {
	Kind   chart.Kind
	X, Y   string
	XRange *dataset.Range
	YRange *dataset.Range
}

// Result is a resolved selection with its filtered view and chart.
type Result struct {
	// Selection has X, Y and both ranges filled in.
	Selection Selection

	// Numeric lists the selectable columns.
	Numeric []string

	// XBounds and YBounds are the full observed ranges, for slider limits.
	XBounds, YBounds dataset.Range

	View  *dataset.Dataset
	Chart *chart.Handle
}

// Run resolves sel against ds, filters by the X and Y ranges and renders
// the chart over the filtered rows.
func Run(ds *dataset.Dataset, sel Selection) (*Result, error) {
	res, err := Resolve(ds, sel)
	if err != nil {
		return nil, err
	}

	constraints := map[string]dataset.Range{}
	addConstraint(constraints, res.Selection.X, res.Selection.XRange)
	addConstraint(constraints, res.Selection.Y, res.Selection.YRange)

	res.View, err = dataset.Filter(ds, constraints)
	if err != nil {
		return nil, err
	}

	y := ""
	if res.Selection.Kind.NeedsY() {
		y = res.Selection.Y
	}
	res.Chart, err = chart.Render(res.Selection.Kind, res.View, res.Selection.X, y)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Resolve fills in defaults and clamps ranges into the column bounds without
// filtering. Reversed ranges are swapped.
func Resolve(ds *dataset.Dataset, sel Selection) (*Result, error) {
	numeric := dataset.NumericColumns(ds)
	if len(numeric) == 0 {
		return nil, &chart.UnsupportedChartError{Kind: sel.Kind.Label(), Reason: "the dataset has no numeric columns"}
	}
	if sel.X == "" {
		sel.X = numeric[0]
	}
	if sel.Y == "" {
		sel.Y = numeric[0]
	}
	if !slices.Contains(numeric, sel.X) {
		return nil, &chart.UnsupportedChartError{Kind: sel.Kind.Label(), Reason: "x must be a numeric column, got " + sel.X}
	}
	if !slices.Contains(numeric, sel.Y) {
		return nil, &chart.UnsupportedChartError{Kind: sel.Kind.Label(), Reason: "y must be a numeric column, got " + sel.Y}
	}

	res := &Result{Numeric: numeric}
	var ok bool
	res.XBounds, ok = dataset.Bounds(ds, sel.X)
	sel.XRange = resolveRange(sel.XRange, res.XBounds, ok)
	res.YBounds, ok = dataset.Bounds(ds, sel.Y)
	sel.YRange = resolveRange(sel.YRange, res.YBounds, ok)
	res.Selection = sel
	return res, nil
}

// resolveRange returns nil when the column has no values to bound it.
func resolveRange(r *dataset.Range, bounds dataset.Range, ok bool) *dataset.Range {
	if !ok {
		return nil
	}
	out := bounds
	if r != nil {
		out = r.Clamp(bounds)
	}
	return &out
}

// addConstraint intersects with any range already set for the column, so
// X == Y filters by both sliders.
func addConstraint(m map[string]dataset.Range, name string, r *dataset.Range) {
	if r == nil {
		return
	}
	if prev, ok := m[name]; ok {
		m[name] = dataset.Range{Min: math.Max(prev.Min, r.Min), Max: math.Min(prev.Max, r.Max)}
		return
	}
	m[name] = *r
}
