package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/shpitdev/datadash/pkg/dataset"
)

// ToCSV writes a header row followed by one record per row. Numeric cells use
// the shortest decimal form and missing cells are empty.
func ToCSV(ds *dataset.Dataset) ([]byte, error) {
	if ds == nil {
		return nil, fmt.Errorf("export csv: nil dataset")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ds.Names()); err != nil {
		return nil, fmt.Errorf("export csv: write header: %w", err)
	}
	for i := 0; i < ds.Len(); i++ {
		if err := w.Write(ds.Row(i)); err != nil {
			return nil, fmt.Errorf("export csv: write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export csv: flush: %w", err)
	}
	return buf.Bytes(), nil
}
