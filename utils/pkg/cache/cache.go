// Package cache provides a keyed memoizing cache with TTL expiry, explicit
// eviction and single-flight loading: at most one load per key is in flight,
// and concurrent callers for that key share its result.
package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches the value for a key on a miss.
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

type Config[V any] struct {
	Name string
	// TTL of a loaded entry; zero keeps entries until evicted.
	TTL time.Duration
	// MaxEntries bounds the cache; the oldest entry is evicted first. Zero is unbounded.
	MaxEntries int
	Load       LoadFunc[V]
	Clock      clockwork.Clock
	// OnLookup is called with hit=true or false on every Get.
	OnLookup func(name string, hit bool)
}

func (cfg *Config[V]) Validate() error {
	if cfg.Load == nil {
		return errors.New("load func is required")
	}
	if cfg.TTL < 0 {
		return errors.New("ttl must not be negative")
	}
	if cfg.MaxEntries < 0 {
		return errors.New("max entries must not be negative")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

type Cache[V any] struct {
	cfg   Config[V]
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry[V]
	// gens is bumped on eviction so a load started before the eviction
	// does not repopulate the cache.
	gens  map[string]uint64
	epoch uint64
}

func New[V any](cfg Config[V]) (*Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cache[V]{
		cfg:     cfg,
		entries: make(map[string]entry[V]),
		gens:    make(map[string]uint64),
	}, nil
}

// Get returns the cached value for key, loading it on a miss. Failed loads
// are not cached.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	if v, ok := c.Peek(key); ok {
		c.observe(true)
		return v, nil
	}
	c.observe(false)

	c.mu.Lock()
	gen := c.generation(key)
	c.mu.Unlock()

	// Flights are keyed by generation so a Get after Evict or Clear starts
	// a fresh load instead of joining one that began before it.
	flight := key + "#" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(flight, func() (any, error) {
		// The load outlives any single caller; late callers share it.
		v, err := c.cfg.Load(context.WithoutCancel(ctx), key)
		if err != nil {
			return v, err
		}
		c.store(key, v, gen)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Peek returns a live cached value without loading.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value directly.
func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	gen := c.generation(key)
	c.mu.Unlock()
	c.store(key, v, gen)
}

// Evict drops key. A load already in flight still answers the callers that
// joined it, but its result is not stored and later Gets load afresh.
func (c *Cache[V]) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.gens[key]++
}

// Clear drops every entry. In-flight loads are discarded as with Evict.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
	c.gens = make(map[string]uint64)
	c.epoch++
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// generation must be called with mu held.
func (c *Cache[V]) generation(key string) uint64 {
	return c.gens[key] + c.epoch<<32
}

func (c *Cache[V]) store(key string, v V, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation(key) {
		return
	}
	c.entries[key] = entry[V]{value: v, storedAt: c.cfg.Clock.Now()}
	c.evictOverflow()
}

// evictOverflow must be called with mu held.
func (c *Cache[V]) evictOverflow() {
	if c.cfg.MaxEntries == 0 {
		return
	}
	for len(c.entries) > c.cfg.MaxEntries {
		var oldestKey string
		var oldest time.Time
		first := true
		for k, e := range c.entries {
			if first || e.storedAt.Before(oldest) {
				oldestKey, oldest, first = k, e.storedAt, false
			}
		}
		delete(c.entries, oldestKey)
	}
}

func (c *Cache[V]) expired(e entry[V]) bool {
	return c.cfg.TTL > 0 && c.cfg.Clock.Since(e.storedAt) >= c.cfg.TTL
}

func (c *Cache[V]) observe(hit bool) {
	if c.cfg.OnLookup != nil {
		c.cfg.OnLookup(c.cfg.Name, hit)
	}
}
