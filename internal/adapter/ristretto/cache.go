// Package ristretto implements the resolver's card cache using
// dgraph-io/ristretto as an in-process L1. Cached values are serialized
// resolution results keyed by normalized agent URL; the TTL comes from
// resolver configuration, so a re-deployed agent is picked up after at most
// one TTL window.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/agent-matrix/a2a-validator/internal/config"
)

// Cache is a byte-bounded in-process cache for resolved agent cards.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates the card cache sized by configuration.
func New(cfg config.Cache) (*Cache, error) {
	maxCost := cfg.MaxSizeMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Cards are a few KB each; counters sized for ~10x the expected
		// entry count at that payload size.
		NumCounters: maxCost / 1024 * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a serialized resolution result.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a serialized resolution result with the given TTL. Admission is
// asynchronous; a Set may be dropped under pressure, which only costs a
// re-resolution.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete evicts one entry, forcing the next resolution to hit the network.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until pending Sets are applied. Tests need it; the serving
// path does not.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
