package dataset

// ColumnSummary describes one column: its type, how many cells are present,
// and for numeric columns the observed min, max and mean.
type ColumnSummary struct {
	Name    string
	Type    ColumnType
	Count   int
	Missing int

	// Numeric is true when Min, Max and Mean are set.
	Numeric        bool
	Min, Max, Mean float64
}

// Summarize returns one summary per column in schema order.
func Summarize(d *Dataset) []ColumnSummary {
	out := make([]ColumnSummary, 0, len(d.cols))
	for _, c := range d.cols {
		s := ColumnSummary{Name: c.name, Type: c.typ, Count: c.Count()}
		s.Missing = c.Len() - s.Count
		if c.typ.IsNumeric() && s.Count > 0 {
			if r, ok := Bounds(d, c.name); ok {
				s.Min, s.Max = r.Min, r.Max
			}
			sum := 0.0
			for i := 0; i < c.Len(); i++ {
				if v, ok := c.Float(i); ok {
					sum += v
				}
			}
			s.Mean = sum / float64(s.Count)
			s.Numeric = true
		}
		out = append(out, s)
	}
	return out
}
