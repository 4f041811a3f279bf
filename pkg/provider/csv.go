package provider

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shpitdev/datadash/pkg/api"
	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/pipeline/schema"
	"github.com/shpitdev/datadash/pkg/pipeline/worker"
)

// CSVProvider loads the dataset from CSV bytes, read either from a local file
// or from the API's CSV endpoint.
type CSVProvider struct {
	source   string
	read     func(ctx context.Context) ([]byte, error)
	contract *schema.Contract
	logger   *slog.Logger
}

// NewCSVFileProvider reads the CSV file at path on every Load.
func NewCSVFileProvider(path string, contract *schema.Contract, logger *slog.Logger) *CSVProvider {
	return &CSVProvider{
		source: path,
		read: func(context.Context) ([]byte, error) {
			return os.ReadFile(path)
		},
		contract: contract,
		logger:   orDefault(logger),
	}
}

// NewCSVAPIProvider downloads the CSV endpoint, retrying transient failures.
func NewCSVAPIProvider(client *api.Client, contract *schema.Contract, logger *slog.Logger) *CSVProvider {
	return &CSVProvider{
		source: client.BaseURL() + "records.csv",
		read: func(ctx context.Context) ([]byte, error) {
			var b []byte
			err := retryTransient(ctx, 4, 200*time.Millisecond, func() error {
				var err error
				b, err = client.FetchCSV(ctx)
				return err
			})
			return b, err
		},
		contract: contract,
		logger:   orDefault(logger),
	}
}

func (p *CSVProvider) Load(ctx context.Context) (*dataset.Dataset, error) {
	start := time.Now()
	b, err := p.read(ctx)
	if err != nil {
		return nil, unavailable(p.source, err)
	}

	var declared map[string]dataset.ColumnType
	if p.contract != nil {
		if declared, err = p.contract.Types(); err != nil {
			return nil, unavailable(p.source, err)
		}
	}
	ds, err := dataset.ReadCSV(bytes.NewReader(b), declared)
	if err != nil {
		return nil, unavailable(p.source, fmt.Errorf("parse csv: %w", err))
	}
	if ds.Width() == 0 {
		return nil, unavailable(p.source, fmt.Errorf("dataset has no columns"))
	}
	if p.contract != nil {
		if err := p.contract.Check(ds); err != nil {
			return nil, unavailable(p.source, err)
		}
	}
	p.logger.Info("dataset loaded",
		"source", p.source,
		"rows", ds.Len(),
		"columns", ds.Width(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return ds, nil
}

func retryTransient(ctx context.Context, attempts int, initialSleep time.Duration, f func() error) error {
	sleep := initialSleep
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := f()
		if err == nil {
			return nil
		}
		lastErr = err
		if !worker.IsTransient(err) || i == attempts-1 {
			return err
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		sleep *= 2
		if sleep > 2*time.Second {
			sleep = 2 * time.Second
		}
	}
	return lastErr
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
