// Package worker fetches dataset pages concurrently with a bounded pool, a
// global rate limit and retries for transient failures.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/shpitdev/datadash/pkg/pipeline/core"
	"golang.org/x/time/rate"
)

type Options struct {
	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64
}

// PageFunc fetches one page.
type PageFunc[T any] func(ctx context.Context, page int) (T, error)

// PageError reports which page failed after retries were exhausted.
type PageError struct {
	Page     int
	Attempts int
	Err      error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d failed after %d attempt(s): %v", e.Page, e.Attempts, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 200 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 2 * time.Second
	}
	if o.BackoffJitterFrac <= 0 {
		o.BackoffJitterFrac = 0.2
	}
	return o
}

// FetchPages fetches every page in pages and returns the results in the same
// order. The first page that fails stops the run: a dataset with a missing
// page is never returned.
func FetchPages[T any](ctx context.Context, pages []int, fetch PageFunc[T], opts Options) ([]T, error) {
	return FetchPagesWithCallback(ctx, pages, fetch, nil, opts)
}

// FetchPagesWithCallback is FetchPages with onPage invoked in completion
// order as each page arrives. A callback error stops the run.
func FetchPagesWithCallback[T any](
	ctx context.Context,
	pages []int,
	fetch PageFunc[T],
	onPage func(page int, v T) error,
	opts Options,
) ([]T, error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]T, len(pages))

	type job struct {
		idx  int
		page int
	}
	type completion struct {
		idx  int
		page int
		val  T
	}

	jobs := make(chan job)
	done := make(chan completion, opts.Workers)

	var wg sync.WaitGroup

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	workerFn := func() {
		defer wg.Done()
		for j := range jobs {
			if runCtx.Err() != nil {
				return
			}
			v, err := fetchWithRetry(runCtx, j.page, fetch, limiter, opts)
			if err != nil {
				fail(err)
				return
			}
			select {
			case done <- completion{idx: j.idx, page: j.page, val: v}:
			case <-runCtx.Done():
				return
			}
		}
	}

	workers := opts.Workers
	if workers > len(pages) {
		workers = len(pages)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go workerFn()
	}

	go func() {
		defer close(jobs)
		for i, p := range pages {
			select {
			case jobs <- job{idx: i, page: p}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	for c := range done {
		out[c.idx] = c.val
		if onPage != nil {
			if err := onPage(c.page, c.val); err != nil {
				fail(err)
			}
		}
	}

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func fetchWithRetry[T any](
	ctx context.Context,
	page int,
	fetch PageFunc[T],
	limiter *rate.Limiter,
	opts Options,
) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
		v, err := fetch(reqCtx, page)
		cancel()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !IsTransient(err) || attempt >= maxExtraRetries(opts.MaxRetries, err) {
			return zero, &PageError{Page: page, Attempts: attempt + 1, Err: err}
		}

		t := time.NewTimer(backoffSleep(opts.BackoffInitial, opts.BackoffMax, opts.BackoffJitterFrac, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		}
	}
}

type retryCap interface {
	MaxExtraRetries() int
}

func maxExtraRetries(defaultRetries int, err error) int {
	if defaultRetries < 0 {
		defaultRetries = 0
	}
	var capErr retryCap
	if errors.As(err, &capErr) {
		limited := capErr.MaxExtraRetries()
		if limited < 0 {
			limited = 0
		}
		if limited < defaultRetries {
			return limited
		}
	}
	return defaultRetries
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *core.TransientError
	if errors.As(err, &te) {
		return true
	}
	var lte *core.LimitedTransientError
	if errors.As(err, &lte) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
