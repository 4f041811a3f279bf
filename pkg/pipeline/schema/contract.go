// Package schema parses the optional dataset contract that pins column types
// instead of inferring them.
package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/datadash/pkg/dataset"
)

// Column is one declared column.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Contract is the declared dataset schema.
//
// Example (YAML):
//
//	columns:
//	  - name: precio
//	    type: float
//	  - name: barrio
//	    type: text
type Contract struct {
	Columns []Column `yaml:"columns"`
}

// LoadFile reads a contract from path.
func LoadFile(path string) (Contract, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Contract{}, fmt.Errorf("dataset contract path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Contract{}, fmt.Errorf("read dataset contract: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML contract.
func Parse(b []byte) (Contract, error) {
	var c Contract
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Contract{}, fmt.Errorf("parse dataset contract YAML: %w", err)
	}
	if _, err := c.Types(); err != nil {
		return Contract{}, err
	}
	return c, nil
}

// Types maps each declared column to its type.
func (c Contract) Types() (map[string]dataset.ColumnType, error) {
	out := make(map[string]dataset.ColumnType, len(c.Columns))
	for i, col := range c.Columns {
		name := strings.TrimSpace(col.Name)
		if name == "" {
			return nil, fmt.Errorf("dataset contract column %d: name is required", i)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("dataset contract: duplicate column %q", name)
		}
		typ, err := dataset.ParseColumnType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("dataset contract column %q: %w", name, err)
		}
		out[name] = typ
	}
	return out, nil
}

// Check verifies every declared column is present in ds with its declared type.
func (c Contract) Check(ds *dataset.Dataset) error {
	types, err := c.Types()
	if err != nil {
		return err
	}
	var missing []string
	for _, col := range c.Columns {
		name := strings.TrimSpace(col.Name)
		got, ok := ds.Column(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		if got.Type() != types[name] {
			return fmt.Errorf("column %q is %s, contract declares %s", name, got.Type(), types[name])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("dataset is missing declared column(s): %s", strings.Join(missing, ", "))
	}
	return nil
}
