package consumer

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shpitdev/datadash/pkg/api"
	"github.com/shpitdev/datadash/pkg/chart"
	"github.com/shpitdev/datadash/pkg/export"
	"github.com/shpitdev/datadash/pkg/mockapi"
	"github.com/shpitdev/datadash/pkg/pipeline/schema"
	"github.com/shpitdev/datadash/pkg/pipeline/view"
	"github.com/shpitdev/datadash/pkg/provider"
)

func TestPublicPackagesCompose(t *testing.T) {
	t.Parallel()

	mock, err := mockapi.FromCSV(strings.NewReader("a,b\n1,x\n2,y\n"))
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	ts := httptest.NewServer(mock.Handler())
	defer ts.Close()

	client, err := api.NewClient(ts.URL, "", "")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	contract, err := schema.Parse([]byte("columns:\n  - {name: a, type: float}\n"))
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	cache := provider.NewCache(provider.NewAPIProvider(client, provider.APIOptions{Contract: &contract}))

	ds, err := cache.Get(context.Background(), "consumer")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res, err := view.Run(ds, view.Selection{Kind: chart.Pie})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := export.CSVArtifact(res.View); err != nil {
		t.Fatalf("csv: %v", err)
	}
	if _, err := export.PNGArtifact(res.Chart); err != nil {
		t.Fatalf("png: %v", err)
	}
}
