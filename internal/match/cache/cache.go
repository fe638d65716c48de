// Package cache is the process-scoped, run-scoped document cache of
// spec §3: documents are immutable once inserted, a second fetch for the
// same id within the run is a no-op, and concurrent misses for the same
// id collapse into a single fetch.
package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Stats are the hit/miss counters spec §3 requires per collection.
type Stats struct {
	Hits   int64
	Misses int64
}

// Fetcher retrieves a single document by id from the backing collection
// on a cache miss.
type Fetcher func(ctx context.Context, collection string, id interface{}) (map[string]interface{}, error)

// Cache is safe for concurrent use by every worker in a matching run. A
// new Cache must be created per run and discarded at the end, per spec §3
// lifecycle.
type Cache struct {
	mu    sync.RWMutex
	docs  map[string]map[string]interface{}
	group singleflight.Group

	stats map[string]*Stats
	statsMu sync.Mutex
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		docs:  make(map[string]map[string]interface{}),
		stats: make(map[string]*Stats),
	}
}

func key(collection string, id interface{}) string {
	return fmt.Sprintf("%s\x00%v", collection, id)
}

// Get returns the cached document for (collection, id) and whether it
// was present, without fetching.
func (c *Cache) Get(collection string, id interface{}) (map[string]interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[key(collection, id)]
	return doc, ok
}

// GetOrFetch returns the cached document for (collection, id), fetching
// it through fetch on a miss. Concurrent callers requesting the same
// (collection, id) share a single in-flight fetch call.
func (c *Cache) GetOrFetch(ctx context.Context, collection string, id interface{}, fetch Fetcher) (map[string]interface{}, error) {
	k := key(collection, id)

	if doc, ok := c.Get(collection, id); ok {
		c.recordHit(collection)
		return doc, nil
	}

	result, err, _ := c.group.Do(k, func() (interface{}, error) {
		if doc, ok := c.Get(collection, id); ok {
			return doc, nil
		}
		c.recordMiss(collection)
		doc, err := fetch(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.docs[k] = doc
		c.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]interface{}), nil
}

// PutIfAbsent inserts doc for (collection, id) if nothing is cached yet
// for that key, preserving the cache's immutability invariant when a
// bulk hydration call races a per-key GetOrFetch for the same document.
func (c *Cache) PutIfAbsent(collection string, id interface{}, doc map[string]interface{}) {
	k := key(collection, id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[k]; !exists {
		c.docs[k] = doc
	}
}

func (c *Cache) recordHit(collection string) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.statFor(collection).Hits++
}

func (c *Cache) recordMiss(collection string) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.statFor(collection).Misses++
}

// statFor must be called with statsMu held.
func (c *Cache) statFor(collection string) *Stats {
	s, ok := c.stats[collection]
	if !ok {
		s = &Stats{}
		c.stats[collection] = s
	}
	return s
}

// StatsFor returns a snapshot of the hit/miss counters for collection.
func (c *Cache) StatsFor(collection string) Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s, ok := c.stats[collection]
	if !ok {
		return Stats{}
	}
	return *s
}

