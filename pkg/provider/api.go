package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shpitdev/datadash/pkg/api"
	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/pipeline/schema"
	"github.com/shpitdev/datadash/pkg/pipeline/worker"
)

const DefaultPageSize = 500

// APIOptions configures an APIProvider.
type APIOptions struct {
	PageSize int
	Fetch    worker.Options
	// Contract pins column types. Nil means infer every column.
	Contract *schema.Contract
	Logger   *slog.Logger
}

// APIProvider loads the dataset from the paginated records endpoint.
type APIProvider struct {
	client *api.Client
	opts   APIOptions
}

func NewAPIProvider(client *api.Client, opts APIOptions) *APIProvider {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &APIProvider{client: client, opts: opts}
}

// Load fetches page 1, then the remaining pages concurrently, and normalizes
// every record into a Dataset.
func (p *APIProvider) Load(ctx context.Context) (*dataset.Dataset, error) {
	source := p.client.BaseURL() + "records"
	start := time.Now()

	fetch := func(ctx context.Context, page int) (api.Page, error) {
		return p.client.FetchPage(ctx, page, p.opts.PageSize)
	}

	first, err := worker.FetchPages(ctx, []int{1}, fetch, p.opts.Fetch)
	if err != nil {
		return nil, unavailable(source, err)
	}
	records := append([]api.Record(nil), first[0].Records...)
	total := first[0].TotalPages

	if total > 1 {
		rest := make([]int, 0, total-1)
		for i := 2; i <= total; i++ {
			rest = append(rest, i)
		}
		pages, err := worker.FetchPagesWithCallback(ctx, rest, fetch, func(page int, pg api.Page) error {
			p.opts.Logger.Debug("fetched page", "page", page, "total_pages", total, "records", len(pg.Records))
			return nil
		}, p.opts.Fetch)
		if err != nil {
			return nil, unavailable(source, err)
		}
		for _, pg := range pages {
			records = append(records, pg.Records...)
		}
	}

	ds, err := FromRecords(records, p.opts.Contract)
	if err != nil {
		return nil, unavailable(source, fmt.Errorf("normalize records: %w", err))
	}
	p.opts.Logger.Info("dataset loaded",
		"source", source,
		"pages", total,
		"rows", ds.Len(),
		"columns", ds.Width(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return ds, nil
}
