package dataset_test

import (
	"testing"

	"github.com/shpitdev/datadash/pkg/dataset"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	precio, err := dataset.NewNumericColumn("precio", dataset.Float, []float64{10, 0, 30}, []bool{true, false, true})
	if err != nil {
		t.Fatalf("precio: %v", err)
	}
	ds, err := dataset.New(mustText(t, "barrio", "a", "", "c"), precio)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	got := dataset.Summarize(ds)
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got))
	}
	if got[0].Numeric || got[0].Count != 2 || got[0].Missing != 1 {
		t.Fatalf("unexpected text summary: %#v", got[0])
	}
	p := got[1]
	if !p.Numeric || p.Count != 2 || p.Min != 10 || p.Max != 30 || p.Mean != 20 {
		t.Fatalf("unexpected numeric summary: %#v", p)
	}
}
