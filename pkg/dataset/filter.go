package dataset

import (
	"fmt"
	"math"
	"sort"
)

// Range is an inclusive [Min, Max] interval over a numeric column.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the interval, bounds included.
func (r Range) Contains(v float64) bool {
	return r.Min <= v && v <= r.Max
}

// Clamp limits r to outer and swaps reversed bounds.
func (r Range) Clamp(outer Range) Range {
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	r.Min = math.Max(r.Min, outer.Min)
	r.Max = math.Min(r.Max, outer.Max)
	if r.Min > r.Max {
		return Range{Min: outer.Min, Max: outer.Max}
	}
	return r
}

// Bounds returns the observed min and max of a numeric column. ok is false when
// the column is unknown, not numeric, or has no values.
func Bounds(d *Dataset, name string) (r Range, ok bool) {
	c, found := d.Column(name)
	if !found || !c.typ.IsNumeric() {
		return Range{}, false
	}
	for i := 0; i < c.Len(); i++ {
		v, valid := c.Float(i)
		if !valid {
			continue
		}
		if !ok {
			r = Range{Min: v, Max: v}
			ok = true
			continue
		}
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	return r, ok
}

// Filter returns the rows of d whose values satisfy every constraint.
// Constraints are AND-combined; missing cells never match. An empty constraint
// set returns d itself.
func Filter(d *Dataset, constraints map[string]Range) (*Dataset, error) {
	if len(constraints) == 0 {
		return d, nil
	}

	// Sorted for deterministic error reporting.
	names := make([]string, 0, len(constraints))
	for name := range constraints {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]Column, 0, len(names))
	ranges := make([]Range, 0, len(names))
	for _, name := range names {
		c, ok := d.Column(name)
		if !ok {
			return nil, fmt.Errorf("filter: unknown column %q", name)
		}
		if !c.typ.IsNumeric() {
			return nil, fmt.Errorf("filter: column %q is %s, not numeric", name, c.typ)
		}
		cols = append(cols, c)
		ranges = append(ranges, constraints[name])
	}

	rows := make([]int, 0, d.Len())
	for i := 0; i < d.Len(); i++ {
		pass := true
		for j, c := range cols {
			v, ok := c.Float(i)
			if !ok || !ranges[j].Contains(v) {
				pass = false
				break
			}
		}
		if pass {
			rows = append(rows, i)
		}
	}
	return d.Take(rows), nil
}
