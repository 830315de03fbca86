package convert

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zhoukaigo/docling-serve/internal/logger"
	"github.com/zhoukaigo/docling-serve/internal/model"
)

// Cache memoizes Converter instances by options fingerprint, bounded to a
// fixed capacity (OPTIONS_CACHE_SIZE). It doubles as a lock table for
// engines that are not internally thread-safe: callers that need to
// serialize per-fingerprint can take the returned *sync.Mutex alongside
// the Converter.
type Cache struct {
	factory Factory

	mu  sync.Mutex
	lru *lru.Cache[string, entry]
}

type entry struct {
	converter Converter
	lock      *sync.Mutex
}

// NewCache builds a Cache of the given capacity backed by factory.
// Capacity below 1 is clamped to 1: a zero-size LRU cannot hold the
// warm-up converter the Local Orchestrator builds at startup.
func NewCache(factory Factory, capacity int) (*Cache, error) {
	if capacity < 1 {
		capacity = 1
	}
	c := &Cache{factory: factory}
	evict, err := lru.NewWithEvict(capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("convert: build cache: %w", err)
	}
	c.lru = evict
	return c, nil
}

func (c *Cache) onEvict(fingerprint string, e entry) {
	logger.Cache.Debug("evicting converter", "fingerprint", fingerprint)
	if err := e.converter.Close(); err != nil {
		logger.Cache.Warn("converter close failed", "fingerprint", fingerprint, "error", err)
	}
}

// GetConverter returns the Converter for opts, building and inserting one
// on a cache miss. It also returns a per-fingerprint *sync.Mutex a caller
// can lock around Convert calls if the underlying engine is not safe for
// concurrent use.
func (c *Cache) GetConverter(ctx context.Context, opts model.Options) (Converter, *sync.Mutex, error) {
	fp := opts.Normalize().Fingerprint()

	c.mu.Lock()
	if e, ok := c.lru.Get(fp); ok {
		c.mu.Unlock()
		return e.converter, e.lock, nil
	}
	c.mu.Unlock()

	conv, err := c.factory.Build(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailableEngine, err)
	}

	e := entry{converter: conv, lock: &sync.Mutex{}}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have raced us to build the same fingerprint;
	// prefer whichever is already resident and close the loser.
	if existing, ok := c.lru.Get(fp); ok {
		_ = conv.Close()
		return existing.converter, existing.lock, nil
	}
	c.lru.Add(fp, e)
	logger.Cache.Info("built converter", "fingerprint", fp)
	return e.converter, e.lock, nil
}

// Clear evicts every entry, closing each Converter. Serves the
// GET /v1alpha/clear/converters endpoint.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len reports the number of converters currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
