package provider_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shpitdev/datadash/pkg/api"
	"github.com/shpitdev/datadash/pkg/dataset"
	"github.com/shpitdev/datadash/pkg/mockapi"
	"github.com/shpitdev/datadash/pkg/pipeline/schema"
	"github.com/shpitdev/datadash/pkg/pipeline/worker"
	"github.com/shpitdev/datadash/pkg/provider"
)

const sampleCSV = "barrio,precio,habitaciones\ncentro,120.5,2\nnorte,,3\nsur,99,1\neste,75.25,2\noeste,210,4\n"

func fastFetch() worker.Options {
	return worker.Options{
		Workers:           3,
		MaxRetries:        2,
		RequestTimeout:    2 * time.Second,
		BackoffInitial:    1 * time.Millisecond,
		BackoffMax:        2 * time.Millisecond,
		BackoffJitterFrac: 0,
	}
}

func startMock(t *testing.T, csv string) (*mockapi.Server, *api.Client) {
	t.Helper()
	srv, err := mockapi.FromCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client, err := api.NewClient(ts.URL, "", "")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return srv, client
}

func TestAPIProvider_LoadsAllPages(t *testing.T) {
	t.Parallel()

	srv, client := startMock(t, sampleCSV)
	p := provider.NewAPIProvider(client, provider.APIOptions{PageSize: 2, Fetch: fastFetch()})

	ds, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want, err := dataset.ReadCSV(strings.NewReader(sampleCSV), nil)
	if err != nil {
		t.Fatalf("read want: %v", err)
	}
	if !dataset.Equal(ds, want) {
		t.Fatalf("loaded dataset differs: schema=%v rows=%d", ds.Schema(), ds.Len())
	}
	if got := len(srv.Calls()); got != 3 {
		t.Fatalf("expected 3 page requests, got %d", got)
	}
}

func TestAPIProvider_RetriesTransient(t *testing.T) {
	t.Parallel()

	srv, client := startMock(t, sampleCSV)
	srv.FailNext(2, http.StatusServiceUnavailable)
	p := provider.NewAPIProvider(client, provider.APIOptions{PageSize: 10, Fetch: fastFetch()})

	ds, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.Len() != 5 {
		t.Fatalf("rows=%d want 5", ds.Len())
	}
}

func TestAPIProvider_Failures(t *testing.T) {
	t.Parallel()

	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()
		srv, client := startMock(t, sampleCSV)
		srv.RequireBearerToken("required")
		p := provider.NewAPIProvider(client, provider.APIOptions{Fetch: fastFetch()})

		_, err := p.Load(context.Background())
		var due *provider.DataUnavailableError
		if !errors.As(err, &due) {
			t.Fatalf("expected DataUnavailableError, got %v", err)
		}
		var he *api.HTTPError
		if !errors.As(err, &he) || he.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected wrapped 401, got %v", err)
		}
	})

	t.Run("contract mismatch", func(t *testing.T) {
		t.Parallel()
		_, client := startMock(t, sampleCSV)
		contract, err := schema.Parse([]byte("columns:\n  - name: barrio\n    type: float\n"))
		if err != nil {
			t.Fatalf("contract: %v", err)
		}
		p := provider.NewAPIProvider(client, provider.APIOptions{Fetch: fastFetch(), Contract: &contract})

		_, err = p.Load(context.Background())
		var due *provider.DataUnavailableError
		if !errors.As(err, &due) {
			t.Fatalf("expected DataUnavailableError, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()
		client, err := api.NewClient(ts.URL, "", "")
		if err != nil {
			t.Fatalf("client: %v", err)
		}
		opts := fastFetch()
		opts.MaxRetries = 0
		p := provider.NewAPIProvider(client, provider.APIOptions{Fetch: opts})

		_, err = p.Load(context.Background())
		var due *provider.DataUnavailableError
		if !errors.As(err, &due) || !strings.Contains(due.Source, ts.URL) {
			t.Fatalf("expected DataUnavailableError naming the source, got %v", err)
		}
	})
}

func TestFromRecords_FirstSeenOrderAndMissingKeys(t *testing.T) {
	t.Parallel()

	recs := []api.Record{
		{Keys: []string{"b", "a"}, Values: map[string]any{"b": "x", "a": 1.0}},
		{Keys: []string{"a", "c"}, Values: map[string]any{"a": 2.5, "c": true}},
	}
	ds, err := provider.FromRecords(recs, nil)
	if err != nil {
		t.Fatalf("from records: %v", err)
	}
	if got := strings.Join(ds.Names(), ","); got != "b,a,c" {
		t.Fatalf("names=%s", got)
	}
	b, _ := ds.Column("b")
	if b.Valid(1) {
		t.Fatalf("expected missing b in row 2")
	}
	a, _ := ds.Column("a")
	if a.Type() != dataset.Float {
		t.Fatalf("a type=%s", a.Type())
	}
	c, _ := ds.Column("c")
	if c.Type() != dataset.Bool {
		t.Fatalf("c type=%s", c.Type())
	}

	if _, err := provider.FromRecords(nil, nil); err == nil {
		t.Fatalf("expected error for empty records")
	}
}

func TestCSVProvider(t *testing.T) {
	t.Parallel()

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "data.csv")
		if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		ds, err := provider.NewCSVFileProvider(path, nil, nil).Load(context.Background())
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if ds.Len() != 5 || ds.Width() != 3 {
			t.Fatalf("shape %dx%d", ds.Len(), ds.Width())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := provider.NewCSVFileProvider(filepath.Join(t.TempDir(), "nope.csv"), nil, nil).Load(context.Background())
		var due *provider.DataUnavailableError
		if !errors.As(err, &due) {
			t.Fatalf("expected DataUnavailableError, got %v", err)
		}
	})

	t.Run("api endpoint with retry", func(t *testing.T) {
		t.Parallel()
		srv, client := startMock(t, sampleCSV)
		srv.FailNext(1, http.StatusBadGateway)
		ds, err := provider.NewCSVAPIProvider(client, nil, nil).Load(context.Background())
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if ds.Len() != 5 {
			t.Fatalf("rows=%d", ds.Len())
		}
	})
}

type countingProvider struct {
	calls atomic.Int32
	gate  chan struct{}
	fail  atomic.Bool
}

func (p *countingProvider) Load(context.Context) (*dataset.Dataset, error) {
	p.calls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	if p.fail.Load() {
		return nil, &provider.DataUnavailableError{Source: "test", Err: errors.New("down")}
	}
	c, err := dataset.NewNumericColumn("x", dataset.Integer, []float64{1, 2, 3}, nil)
	if err != nil {
		return nil, err
	}
	return dataset.New(c)
}

func TestCache_MemoizesPerSession(t *testing.T) {
	t.Parallel()

	p := &countingProvider{}
	c := provider.NewCache(p)
	ctx := context.Background()

	a1, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	a2, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("expected the same dataset pointer")
	}
	b, err := c.Get(ctx, "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b == a1 {
		t.Fatalf("sessions should load independently")
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("loads=%d want 2", got)
	}
	if got := c.Sessions(); got != 2 {
		t.Fatalf("sessions=%d want 2", got)
	}
}

func TestCache_ConcurrentFirstCallsShareOneLoad(t *testing.T) {
	t.Parallel()

	p := &countingProvider{gate: make(chan struct{})}
	c := provider.NewCache(p)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*dataset.Dataset, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := c.Get(context.Background(), "s")
			if err != nil {
				t.Errorf("get: %v", err)
			}
			results[i] = ds
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	if got := p.calls.Load(); got != 1 {
		t.Fatalf("loads=%d want 1", got)
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("result %d differs", i)
		}
	}
}

func TestCache_FailuresAreNotMemoized(t *testing.T) {
	t.Parallel()

	p := &countingProvider{}
	p.fail.Store(true)
	c := provider.NewCache(p)

	if _, err := c.Get(context.Background(), "s"); err == nil {
		t.Fatalf("expected error")
	}
	if got := c.Sessions(); got != 0 {
		t.Fatalf("sessions=%d want 0", got)
	}

	p.fail.Store(false)
	ds, err := c.Get(context.Background(), "s")
	if err != nil || ds == nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("loads=%d want 2", got)
	}
}

func TestCache_WaiterHonorsContext(t *testing.T) {
	t.Parallel()

	p := &countingProvider{gate: make(chan struct{})}
	defer close(p.gate)
	c := provider.NewCache(p)

	go func() { _, _ = c.Get(context.Background(), "s") }()
	for p.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Get(ctx, "s"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	p := &countingProvider{}
	c := provider.NewBoundedCache(p, 2)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "a", "c"} {
		if _, err := c.Get(ctx, key); err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
	}
	if got := c.Sessions(); got != 2 {
		t.Fatalf("sessions=%d want 2", got)
	}
	if got := p.calls.Load(); got != 3 {
		t.Fatalf("loads=%d want 3", got)
	}

	// "a" was used after "b", so "b" is the one dropped.
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("get a: %v", err)
	}
	if got := p.calls.Load(); got != 3 {
		t.Fatalf("a reloaded: loads=%d want 3", got)
	}
	if _, err := c.Get(ctx, "b"); err != nil {
		t.Fatalf("get b: %v", err)
	}
	if got := p.calls.Load(); got != 4 {
		t.Fatalf("loads=%d want 4", got)
	}
}

type panickingProvider struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (p *panickingProvider) Load(context.Context) (*dataset.Dataset, error) {
	p.calls.Add(1)
	<-p.gate
	panic("boom")
}

func TestCache_PanickingLoadReleasesWaiters(t *testing.T) {
	t.Parallel()

	p := &panickingProvider{gate: make(chan struct{})}
	c := provider.NewCache(p)

	first := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "s")
		first <- err
	}()
	for p.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	waiter := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "s")
		waiter <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(p.gate)

	for name, ch := range map[string]chan error{"loader": first, "waiter": waiter} {
		select {
		case err := <-ch:
			var due *provider.DataUnavailableError
			if !errors.As(err, &due) {
				t.Fatalf("%s: expected DataUnavailableError, got %v", name, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s still blocked after the load panicked", name)
		}
	}
	if got := c.Sessions(); got != 0 {
		t.Fatalf("sessions=%d want 0", got)
	}
}
