package probe

import (
	"context"
	"sync"
)

// metadataProber abstracts the underlying prober for testability.
type metadataProber interface {
	Probe(ctx context.Context, path string) (Result, error)
}

// Cache memoizes successful probe results per input path. Entries live for
// the UI session; Clear is the only full invalidation. Errors are never
// cached, so a failed probe is retried on the next call.
type Cache struct {
	prober metadataProber

	mu      sync.RWMutex
	results map[string]Result
}

// NewCache wraps a prober with per-path memoization.
func NewCache(prober metadataProber) *Cache {
	return &Cache{
		prober:  prober,
		results: make(map[string]Result),
	}
}

// Probe returns the cached result when present, probing on first access.
func (c *Cache) Probe(ctx context.Context, path string) (Result, error) {
	c.mu.RLock()
	cached, ok := c.results[path]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	result, err := c.prober.Probe(ctx, path)
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	c.results[path] = result
	c.mu.Unlock()
	return result, nil
}

// Invalidate drops the cached entry for one path, if any.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.results, path)
	c.mu.Unlock()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.results = make(map[string]Result)
	c.mu.Unlock()
}
