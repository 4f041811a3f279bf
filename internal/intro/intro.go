// Package intro produces the introduction text shown on the dashboard's
// Introducción page.
package intro

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/pipeline/redact"
)

// Intro is a short narrative about a dataset.
type Intro struct {
	Title      string
	Summary    string
	Highlights []string
	// Source names what wrote the text, e.g. "static" or a model name.
	Source string
}

// Describer writes an Intro for a dataset.
type Describer interface {
	Describe(ctx context.Context, ds *dataset.Dataset) (Intro, error)
}

// Static describes the dataset from its schema and summary statistics.
type Static struct{}

func (Static) Describe(_ context.Context, ds *dataset.Dataset) (Intro, error) {
	out := Intro{
		Title:   "Introducción al conjunto de datos",
		Summary: fmt.Sprintf("El conjunto de datos contiene %d filas y %d columnas.", ds.Len(), ds.Width()),
		Source:  "static",
	}
	numeric := dataset.NumericColumns(ds)
	if len(numeric) > 0 {
		out.Summary += " Columnas numéricas disponibles para graficar: " + strings.Join(numeric, ", ") + "."
	} else {
		out.Summary += " No hay columnas numéricas para graficar."
	}
	for _, s := range dataset.Summarize(ds) {
		line := fmt.Sprintf("%s (%s): %d valores", s.Name, s.Type, s.Count)
		if s.Missing > 0 {
			line += fmt.Sprintf(", %d faltantes", s.Missing)
		}
		if s.Numeric {
			line += fmt.Sprintf(", rango %s a %s, media %s", num(s.Min), num(s.Max), num(s.Mean))
		}
		out.Highlights = append(out.Highlights, line)
	}
	return out, nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WithFallback returns primary's intro, or fallback's when primary fails.
// Results are memoized per dataset so a model is asked once per load.
func WithFallback(primary, fallback Describer, logger *slog.Logger) Describer {
	if logger == nil {
		logger = slog.Default()
	}
	return &fallbackDescriber{primary: primary, fallback: fallback, logger: logger}
}

type fallbackDescriber struct {
	primary  Describer
	fallback Describer
	logger   *slog.Logger

	mu   sync.Mutex
	memo map[*dataset.Dataset]Intro
}

func (d *fallbackDescriber) Describe(ctx context.Context, ds *dataset.Dataset) (Intro, error) {
	d.mu.Lock()
	if in, ok := d.memo[ds]; ok {
		d.mu.Unlock()
		return in, nil
	}
	d.mu.Unlock()

	in, err := d.primary.Describe(ctx, ds)
	if err != nil {
		d.logger.Warn("intro describer failed, using fallback", "err", redact.Secrets(err.Error()))
		return d.fallback.Describe(ctx, ds)
	}

	d.mu.Lock()
	if d.memo == nil {
		d.memo = make(map[*dataset.Dataset]Intro)
	}
	d.memo[ds] = in
	d.mu.Unlock()
	return in, nil
}
