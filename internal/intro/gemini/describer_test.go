package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/pipeline/core"
)

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "timeout net err" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return false }

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name          string
		in            error
		wantTransient bool
	}{
		{name: "nil", in: nil, wantTransient: false},
		{name: "api_429", in: genai.APIError{Code: 429}, wantTransient: true},
		{name: "api_500", in: genai.APIError{Code: 500}, wantTransient: true},
		{name: "api_401", in: genai.APIError{Code: 401}, wantTransient: false},
		{name: "net_timeout", in: timeoutNetErr{}, wantTransient: true},
		{name: "plain_error_mentioning_429", in: errors.New("status 429"), wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.in)
			var te *core.TransientError
			isTransient := errors.As(got, &te)
			if isTransient != tt.wantTransient {
				t.Fatalf("transient=%v want=%v (err=%T %v)", isTransient, tt.wantTransient, got, got)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	ds, err := dataset.ReadCSV(strings.NewReader("barrio,precio\ncentro,10\nnorte,30\n"), nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	p := buildPrompt(ds)
	for _, want := range []string{"Filas: 2", "precio (integer)", "min=10 max=30 media=20", "centro,10"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without API key")
	}
}
