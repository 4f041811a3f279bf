package schema_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/pipeline/schema"
)

const contractYAML = `
columns:
  - name: precio
    type: float
  - name: habitaciones
    type: int
  - name: barrio
    type: text
`

func TestParse(t *testing.T) {
	t.Parallel()

	c, err := schema.Parse([]byte(contractYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	types, err := c.Types()
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	want := map[string]dataset.ColumnType{
		"precio":       dataset.Float,
		"habitaciones": dataset.Integer,
		"barrio":       dataset.Text,
	}
	if len(types) != len(want) {
		t.Fatalf("types=%v want=%v", types, want)
	}
	for k, v := range want {
		if types[k] != v {
			t.Fatalf("types[%q]=%s want %s", k, types[k], v)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bad yaml", in: "columns: [", want: "parse dataset contract"},
		{name: "unknown type", in: "columns:\n  - name: a\n    type: blob\n", want: "\"a\""},
		{name: "missing name", in: "columns:\n  - type: int\n", want: "name is required"},
		{name: "duplicate", in: "columns:\n  - {name: a, type: int}\n  - {name: a, type: float}\n", want: "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Parse([]byte(tt.in))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(contractYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := schema.LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(c.Columns))
	}
	if _, err := schema.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	c, err := schema.Parse([]byte(contractYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	types, _ := c.Types()

	ok, err := dataset.ReadCSV(strings.NewReader("barrio,precio,habitaciones\ncentro,10,2\n"), types)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := c.Check(ok); err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}

	missing, err := dataset.ReadCSV(strings.NewReader("barrio,precio\ncentro,10\n"), types)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := c.Check(missing); err == nil || !strings.Contains(err.Error(), "habitaciones") {
		t.Fatalf("expected missing column error, got %v", err)
	}
}
