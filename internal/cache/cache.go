// Package cache memoizes computed analysis timelines. Concurrent requests
// for the same source collapse into a single computation, and the
// in-memory tier is bounded so a scan of distinct sources cannot grow the
// process without limit.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/onesong-app/pulse/internal/analysis"
	"github.com/onesong-app/pulse/internal/source"
	"github.com/onesong-app/pulse/pkg/logger"
)

// DefaultMaxEntries bounds the in-memory tier. Timelines for a few-minute
// source run tens of kilobytes, so 256 keeps the tier in the megabytes.
const DefaultMaxEntries = 256

// Store is an optional persistent tier consulted on memory misses and
// written through on computation. Load returns (nil, nil) on a miss.
type Store interface {
	Load(id string) (*analysis.Timeline, error)
	Save(id string, tl *analysis.Timeline) error
}

// Cache is a two-tier, single-flight timeline cache. The zero value is not
// usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[source.ID]*analysis.Timeline
	order   []source.ID
	max     int

	group singleflight.Group
	store Store
	log   *logger.Logger
}

// New builds a cache holding at most maxEntries timelines in memory.
// store may be nil, in which case only the memory tier is used.
func New(maxEntries int, store Store) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries: make(map[source.ID]*analysis.Timeline),
		max:     maxEntries,
		store:   store,
		log:     logger.GetLogger(),
	}
}

// Len reports the number of timelines held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Get returns the memoized timeline for id, consulting memory only.
func (c *Cache) Get(id source.ID) (*analysis.Timeline, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tl, ok := c.entries[id]
	return tl, ok
}

// GetOrCompute returns the timeline for id, computing it at most once no
// matter how many callers arrive concurrently. Lookup order is memory,
// then the persistent tier, then compute; successful computations are
// written through to both tiers.
func (c *Cache) GetOrCompute(ctx context.Context, id source.ID, compute func(context.Context) (*analysis.Timeline, error)) (*analysis.Timeline, error) {
	if tl, ok := c.Get(id); ok {
		return tl, nil
	}

	v, err, _ := c.group.Do(string(id), func() (interface{}, error) {
		// A concurrent winner may have populated the map between our
		// miss and the group admitting us.
		if tl, ok := c.Get(id); ok {
			return tl, nil
		}

		if c.store != nil {
			if tl, err := c.store.Load(string(id)); err != nil {
				c.log.Warnf("cache: persistent load for %s: %v", id, err)
			} else if tl != nil {
				c.put(id, tl)
				return tl, nil
			}
		}

		tl, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		c.put(id, tl)
		if c.store != nil {
			if err := c.store.Save(string(id), tl); err != nil {
				c.log.Warnf("cache: persistent save for %s: %v", id, err)
			}
		}
		return tl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*analysis.Timeline), nil
}

// put inserts id, evicting the oldest entries in insertion order when the
// bound is exceeded.
func (c *Cache) put(id source.ID, tl *analysis.Timeline) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; !exists {
		c.order = append(c.order, id)
	}
	c.entries[id] = tl

	for len(c.entries) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
