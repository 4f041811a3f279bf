package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// FromStrings builds a Dataset from a header and string rows. Columns listed in
// declared get that type; every other column's type is inferred from its
// non-empty cells. Short rows are padded with missing cells. Surrounding
// whitespace is ignored when a cell is parsed as a number, bool or date; Text
// cells are kept verbatim.
func FromStrings(header []string, rows [][]string, declared map[string]ColumnType) (*Dataset, error) {
	cols := make([]Column, 0, len(header))
	for j, raw := range header {
		name := strings.TrimSpace(raw)
		cells := make([]string, len(rows))
		for i, rec := range rows {
			if j < len(rec) {
				cells[i] = rec[j]
			}
		}

		typ, ok := declared[name]
		if !ok {
			typ = InferType(cells)
		}
		if typ != Text {
			for i := range cells {
				cells[i] = strings.TrimSpace(cells[i])
			}
		}
		c, err := buildColumn(name, typ, cells)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

func buildColumn(name string, typ ColumnType, cells []string) (Column, error) {
	if !typ.IsNumeric() {
		return NewTextColumn(name, typ, cells)
	}
	values := make([]float64, len(cells))
	valid := make([]bool, len(cells))
	for i, s := range cells {
		if s == "" || isNonFinite(s) {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Column{}, fmt.Errorf("column %q row %d: %q is not %s", name, i+1, s, typ)
		}
		if typ == Integer && v != float64(int64(v)) {
			return Column{}, fmt.Errorf("column %q row %d: %q is not %s", name, i+1, s, typ)
		}
		values[i] = v
		valid[i] = true
	}
	return NewNumericColumn(name, typ, values, valid)
}

// InferType picks the narrowest type that accepts every non-empty cell.
// NaN and infinities count as missing. A column with no values is Text.
func InferType(cells []string) ColumnType {
	isInt, isFloat, isBool, isDate := true, true, true, true
	seen := false
	for _, s := range cells {
		s = strings.TrimSpace(s)
		if s == "" || isNonFinite(s) {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			l := strings.ToLower(s)
			isBool = l == "true" || l == "false"
		}
		if isDate {
			isDate = parsesAsDate(s)
		}
		if !isInt && !isFloat && !isBool && !isDate {
			return Text
		}
	}
	switch {
	case !seen:
		return Text
	case isInt:
		return Integer
	case isFloat:
		return Float
	case isBool:
		return Bool
	case isDate:
		return Date
	default:
		return Text
	}
}

// isNonFinite reports whether s parses as NaN or an infinity. Such cells
// are missing values, never numbers.
func isNonFinite(s string) bool {
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && (math.IsNaN(v) || math.IsInf(v, 0))
}

func parsesAsDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// ReadCSV reads a CSV with a header row into a Dataset.
func ReadCSV(r io.Reader, declared map[string]ColumnType) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d has %d columns, header has %d", len(rows)+1, len(rec), len(header))
		}
		rows = append(rows, rec)
	}
	return FromStrings(header, rows, declared)
}
