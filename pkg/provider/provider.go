// Package provider loads the dashboard dataset from its source and memoizes it
// per session.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/shpitdev/datadash/pkg/api"
	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/pipeline/schema"
)

// Provider loads a complete dataset.
type Provider interface {
	Load(ctx context.Context) (*dataset.Dataset, error)
}

// DataUnavailableError reports that the dataset could not be loaded or parsed.
type DataUnavailableError struct {
	Source string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	if e == nil {
		return "data unavailable"
	}
	if e.Err == nil {
		return fmt.Sprintf("data unavailable from %s", e.Source)
	}
	return fmt.Sprintf("data unavailable from %s: %v", e.Source, e.Err)
}

func (e *DataUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func unavailable(source string, err error) error {
	return &DataUnavailableError{Source: source, Err: err}
}

// FromRecords normalizes JSON records into a Dataset. Columns appear in the
// order their keys are first seen; a record lacking a key has a missing cell.
// Types come from the contract when it declares the column, otherwise they
// are inferred.
func FromRecords(records []api.Record, contract *schema.Contract) (*dataset.Dataset, error) {
	var header []string
	index := make(map[string]int)
	for _, r := range records {
		for _, k := range r.Keys {
			k = strings.TrimSpace(k)
			if _, ok := index[k]; ok {
				continue
			}
			index[k] = len(header)
			header = append(header, k)
		}
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		row := make([]string, len(header))
		for _, k := range r.Keys {
			row[index[strings.TrimSpace(k)]] = r.Cell(k)
		}
		rows[i] = row
	}
	return build(header, rows, contract)
}

func build(header []string, rows [][]string, contract *schema.Contract) (*dataset.Dataset, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}
	var declared map[string]dataset.ColumnType
	if contract != nil {
		t, err := contract.Types()
		if err != nil {
			return nil, err
		}
		declared = t
	}
	ds, err := dataset.FromStrings(header, rows, declared)
	if err != nil {
		return nil, err
	}
	if contract != nil {
		if err := contract.Check(ds); err != nil {
			return nil, err
		}
	}
	return ds, nil
}
