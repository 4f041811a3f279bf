// Package gemini writes dataset introductions with the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/shpitdev/datadash/internal/intro"
	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/pipeline/core"
	"github.com/shpitdev/datadash/pkg/pipeline/worker"
)

const DefaultModel = "gemini-2.5-flash"

// sampleRows bounds how many rows are shown to the model.
const sampleRows = 5

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// MaxRetries bounds retries of transient API failures.
	MaxRetries int
}

type Describer struct {
	client     *genai.Client
	model      string
	maxRetries int
}

func New(ctx context.Context, cfg Config) (*Describer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Describer{client: client, model: model, maxRetries: cfg.MaxRetries}, nil
}

type responseSchema struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":   {Type: genai.TypeString},
		"summary": {Type: genai.TypeString},
		"highlights": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"title", "summary", "highlights"},
}

func (d *Describer) Describe(ctx context.Context, ds *dataset.Dataset) (intro.Intro, error) {
	prompt := buildPrompt(ds)

	var resp *genai.GenerateContentResponse
	for attempt := 0; ; attempt++ {
		var err error
		resp, err = d.client.Models.GenerateContent(
			ctx,
			d.model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{
				CandidateCount:   1,
				ResponseMIMEType: "application/json",
				ResponseSchema:   outputSchema,
			},
		)
		if err == nil {
			break
		}
		err = classifyErr(err)
		if !worker.IsTransient(err) || attempt >= d.maxRetries {
			return intro.Intro{}, fmt.Errorf("gemini: generate intro: %w", err)
		}
		t := time.NewTimer(time.Duration(attempt+1) * 500 * time.Millisecond)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return intro.Intro{}, ctx.Err()
		}
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return intro.Intro{}, fmt.Errorf("gemini: parse structured json: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return intro.Intro{}, errors.New("gemini: empty summary")
	}

	out := intro.Intro{
		Title:   strings.TrimSpace(parsed.Title),
		Summary: strings.TrimSpace(parsed.Summary),
		Source:  d.model,
	}
	for _, h := range parsed.Highlights {
		if h = strings.TrimSpace(h); h != "" {
			out.Highlights = append(out.Highlights, h)
		}
	}
	return out, nil
}

// buildPrompt describes the schema, numeric ranges and a few sample rows.
func buildPrompt(ds *dataset.Dataset) string {
	var b strings.Builder
	b.WriteString(`Eres un analista de datos. Escribe una introducción breve, en español, para un tablero interactivo sobre el siguiente conjunto de datos.

Devuelve SOLO un objeto JSON con estas claves:
- title (string)
- summary (string; 2 a 4 oraciones)
- highlights (array de strings; 3 a 6 observaciones concretas)

Reglas:
- Usa solo la información dada; no inventes columnas ni valores.
- No incluyas claves adicionales.

`)
	fmt.Fprintf(&b, "Filas: %d\nColumnas:\n", ds.Len())
	for _, s := range dataset.Summarize(ds) {
		fmt.Fprintf(&b, "- %s (%s): %d valores, %d faltantes", s.Name, s.Type, s.Count, s.Missing)
		if s.Numeric {
			fmt.Fprintf(&b, ", min=%s max=%s media=%s",
				strconv.FormatFloat(s.Min, 'g', 6, 64),
				strconv.FormatFloat(s.Max, 'g', 6, 64),
				strconv.FormatFloat(s.Mean, 'g', 6, 64))
		}
		b.WriteString("\n")
	}

	head := ds.Head(sampleRows)
	if head.Len() > 0 {
		b.WriteString("Filas de ejemplo (CSV):\n")
		b.WriteString(strings.Join(head.Names(), ","))
		b.WriteString("\n")
		for i := 0; i < head.Len(); i++ {
			b.WriteString(strings.Join(head.Row(i), ","))
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func classifyErr(err error) error {
	// Wrap transient failures so Describe retries them.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
