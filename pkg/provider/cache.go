package provider

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shpitdev/datadash/pkg/dataset"
)

// DefaultMaxSessions bounds how many session datasets a Cache holds.
const DefaultMaxSessions = 64

// Cache memoizes one Provider load per session key. At most maxSessions
// datasets are kept; the least recently used session is dropped first and
// reloads on its next Get. Failed loads are forgotten so the next Get retries.
type Cache struct {
	p Provider

	mu      sync.Mutex
	entries *lru.Cache[string, *cacheEntry]
}

type cacheEntry struct {
	done chan struct{}
	ds   *dataset.Dataset
	err  error
}

func NewCache(p Provider) *Cache {
	return NewBoundedCache(p, DefaultMaxSessions)
}

// NewBoundedCache is NewCache with an explicit session limit. A non-positive
// limit means DefaultMaxSessions.
func NewBoundedCache(p Provider, maxSessions int) *Cache {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	entries, err := lru.New[string, *cacheEntry](maxSessions)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Cache{p: p, entries: entries}
}

// Get returns the dataset for sessionKey, loading it on first use. Concurrent
// first calls for one key share a single load.
func (c *Cache) Get(ctx context.Context, sessionKey string) (*dataset.Dataset, error) {
	c.mu.Lock()
	e, ok := c.entries.Get(sessionKey)
	if !ok {
		e = &cacheEntry{done: make(chan struct{})}
		c.entries.Add(sessionKey, e)
		c.mu.Unlock()

		c.load(ctx, sessionKey, e)
		return e.ds, e.err
	}
	c.mu.Unlock()

	select {
	case <-e.done:
		return e.ds, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load fills e and always releases its waiters, even when the provider
// panics.
func (c *Cache) load(ctx context.Context, sessionKey string, e *cacheEntry) {
	defer close(e.done)
	defer func() {
		if r := recover(); r != nil {
			e.ds, e.err = nil, unavailable("provider", fmt.Errorf("load panicked: %v", r))
		}
		if e.err != nil {
			c.forget(sessionKey, e)
		}
	}()

	// Shared by waiters, so not bound to this request's cancellation.
	e.ds, e.err = c.p.Load(context.WithoutCancel(ctx))
}

// forget drops the entry for sessionKey unless a newer load replaced it.
func (c *Cache) forget(sessionKey string, e *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries.Peek(sessionKey); ok && cur == e {
		c.entries.Remove(sessionKey)
	}
}

// Sessions reports how many sessions hold a loaded dataset.
func (c *Cache) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries.Values() {
		select {
		case <-e.done:
			n++
		default:
		}
	}
	return n
}
