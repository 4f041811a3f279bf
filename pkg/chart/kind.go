package chart

import (
	"fmt"
	"strings"
)

// Kind is the closed set of chart variants.
type Kind int

const (
	Bar Kind = iota
	Scatter
	Line
	Histogram
	Pie
)

// Kinds returns every kind in selector order.
func Kinds() []Kind {
	return []Kind{Bar, Scatter, Line, Histogram, Pie}
}

func (k Kind) String() string {
	switch k {
	case Bar:
		return "bar"
	case Scatter:
		return "scatter"
	case Line:
		return "line"
	case Histogram:
		return "histogram"
	case Pie:
		return "pie"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Label is the selector label shown in the dashboard.
func (k Kind) Label() string {
	switch k {
	case Bar:
		return "Barra"
	case Scatter:
		return "Dispersión"
	case Line:
		return "Línea"
	case Histogram:
		return "Histograma"
	case Pie:
		return "Pastel"
	default:
		return k.String()
	}
}

// NeedsY reports whether the kind plots a second column.
func (k Kind) NeedsY() bool {
	return k == Scatter || k == Line
}

func (k Kind) valid() bool {
	return k >= Bar && k <= Pie
}

// ParseKind accepts either the identifier ("scatter") or the selector label
// ("Dispersión"), case-insensitively.
func ParseKind(raw string) (Kind, error) {
	s := strings.TrimSpace(raw)
	for _, k := range Kinds() {
		if strings.EqualFold(s, k.String()) || strings.EqualFold(s, k.Label()) {
			return k, nil
		}
	}
	return 0, &UnsupportedChartError{Kind: s, Reason: "unrecognized chart kind"}
}

// UnsupportedChartError is returned when a chart cannot be built for the
// requested kind and columns.
type UnsupportedChartError struct {
	Kind   string
	Reason string
}

func (e *UnsupportedChartError) Error() string {
	if e == nil {
		return "unsupported chart"
	}
	return fmt.Sprintf("unsupported chart %q: %s", e.Kind, e.Reason)
}
