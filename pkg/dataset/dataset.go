package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColumnType is the declared semantic type of a column.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Float
	Bool
	Date
)

func (t ColumnType) String() string {
	switch t {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Date:
		return "date"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// IsNumeric reports whether values of this type are stored as numbers.
func (t ColumnType) IsNumeric() bool {
	return t == Integer || t == Float
}

// ParseColumnType maps a contract type name to a ColumnType.
func ParseColumnType(raw string) (ColumnType, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "text", "string", "str":
		return Text, nil
	case "integer", "int", "int64", "long":
		return Integer, nil
	case "float", "float64", "double", "number", "decimal":
		return Float, nil
	case "bool", "boolean":
		return Bool, nil
	case "date", "datetime", "timestamp":
		return Date, nil
	default:
		return Text, fmt.Errorf("unknown column type %q", raw)
	}
}

// Column is one named, typed column. Numeric columns keep values in nums,
// everything else keeps the canonical string form in strs. valid marks
// non-missing cells.
type Column struct {
	name  string
	typ   ColumnType
	nums  []float64
	strs  []string
	valid []bool
}

// NewNumericColumn builds an Integer or Float column. A nil valid slice means
// every cell is present. NaN and infinite values are always missing.
func NewNumericColumn(name string, typ ColumnType, values []float64, valid []bool) (Column, error) {
	if !typ.IsNumeric() {
		return Column{}, fmt.Errorf("column %q: type %s is not numeric", name, typ)
	}
	if valid != nil && len(valid) != len(values) {
		return Column{}, fmt.Errorf("column %q: %d validity flags for %d values", name, len(valid), len(values))
	}
	c := Column{
		name:  name,
		typ:   typ,
		nums:  append([]float64(nil), values...),
		valid: make([]bool, len(values)),
	}
	for i, v := range c.nums {
		c.valid[i] = (valid == nil || valid[i]) && !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	return c, nil
}

// NewTextColumn builds a Text, Bool or Date column. Empty strings are missing.
func NewTextColumn(name string, typ ColumnType, values []string) (Column, error) {
	if typ.IsNumeric() {
		return Column{}, fmt.Errorf("column %q: type %s is numeric", name, typ)
	}
	c := Column{
		name:  name,
		typ:   typ,
		strs:  append([]string(nil), values...),
		valid: make([]bool, len(values)),
	}
	for i, v := range values {
		c.valid[i] = v != ""
	}
	return c, nil
}

func (c Column) Name() string     { return c.name }
func (c Column) Type() ColumnType { return c.typ }
func (c Column) Len() int         { return len(c.valid) }

// Valid reports whether cell i holds a value.
func (c Column) Valid(i int) bool {
	return i >= 0 && i < len(c.valid) && c.valid[i]
}

// Float returns the numeric value of cell i. ok is false for missing cells and
// non-numeric columns.
func (c Column) Float(i int) (v float64, ok bool) {
	if !c.typ.IsNumeric() || !c.Valid(i) {
		return 0, false
	}
	return c.nums[i], true
}

// String returns cell i formatted the way it is exported. Missing cells are "".
func (c Column) String(i int) string {
	if !c.Valid(i) {
		return ""
	}
	if c.typ.IsNumeric() {
		return strconv.FormatFloat(c.nums[i], 'f', -1, 64)
	}
	return c.strs[i]
}

// Count returns the number of non-missing cells.
func (c Column) Count() int {
	n := 0
	for _, ok := range c.valid {
		if ok {
			n++
		}
	}
	return n
}

func (c Column) take(rows []int) Column {
	out := Column{name: c.name, typ: c.typ, valid: make([]bool, len(rows))}
	if c.typ.IsNumeric() {
		out.nums = make([]float64, len(rows))
	} else {
		out.strs = make([]string, len(rows))
	}
	for j, i := range rows {
		out.valid[j] = c.valid[i]
		if c.typ.IsNumeric() {
			out.nums[j] = c.nums[i]
		} else {
			out.strs[j] = c.strs[i]
		}
	}
	return out
}

// Field is one schema entry.
type Field struct {
	Name string
	Type ColumnType
}

// Dataset is an immutable, row-aligned collection of uniquely named columns.
type Dataset struct {
	cols  []Column
	index map[string]int
	rows  int
}

// New validates and assembles a Dataset. Column names must be unique and all
// columns must have the same length.
func New(cols ...Column) (*Dataset, error) {
	ds := &Dataset{
		cols:  make([]Column, 0, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		name := strings.TrimSpace(c.name)
		if name == "" {
			return nil, fmt.Errorf("column %d: name is required", i)
		}
		if _, dup := ds.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		if i == 0 {
			ds.rows = c.Len()
		} else if c.Len() != ds.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", name, c.Len(), ds.rows)
		}
		c.name = name
		ds.index[name] = len(ds.cols)
		ds.cols = append(ds.cols, c)
	}
	return ds, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.rows }

// Width returns the number of columns.
func (d *Dataset) Width() int { return len(d.cols) }

// Schema returns the column names and types in order.
func (d *Dataset) Schema() []Field {
	out := make([]Field, len(d.cols))
	for i, c := range d.cols {
		out[i] = Field{Name: c.name, Type: c.typ}
	}
	return out
}

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.cols))
	for i, c := range d.cols {
		out[i] = c.name
	}
	return out
}

// Column looks up a column by name.
func (d *Dataset) Column(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.cols[i], true
}

// Columns returns the columns in schema order.
func (d *Dataset) Columns() []Column {
	return append([]Column(nil), d.cols...)
}

// Row returns row i formatted as strings in schema order.
func (d *Dataset) Row(i int) []string {
	out := make([]string, len(d.cols))
	for j, c := range d.cols {
		out[j] = c.String(i)
	}
	return out
}

// Take returns a new Dataset holding the given rows in the given order.
func (d *Dataset) Take(rows []int) *Dataset {
	out := &Dataset{
		cols:  make([]Column, len(d.cols)),
		index: d.index,
		rows:  len(rows),
	}
	for j, c := range d.cols {
		out.cols[j] = c.take(rows)
	}
	return out
}

// Head returns the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > d.rows {
		n = d.rows
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return d.Take(rows)
}

// Select returns a Dataset restricted to the named columns, in the given order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := d.Column(n)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", n)
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

// Equal reports whether two datasets have the same schema and cell values.
func Equal(a, b *Dataset) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.rows != b.rows || len(a.cols) != len(b.cols) {
		return false
	}
	for j := range a.cols {
		ca, cb := a.cols[j], b.cols[j]
		if ca.name != cb.name || ca.typ != cb.typ {
			return false
		}
		for i := 0; i < a.rows; i++ {
			if ca.Valid(i) != cb.Valid(i) {
				return false
			}
			if ca.typ.IsNumeric() {
				if ca.nums[i] != cb.nums[i] && ca.Valid(i) {
					return false
				}
			} else if ca.strs[i] != cb.strs[i] {
				return false
			}
		}
	}
	return true
}

// NumericColumns returns the names of Integer and Float columns in schema order.
func NumericColumns(d *Dataset) []string {
	var out []string
	for _, c := range d.cols {
		if c.typ.IsNumeric() {
			out = append(out, c.name)
		}
	}
	return out
}
