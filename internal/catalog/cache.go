package catalog

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Simplici0/batchcost/internal/domain"
)

// Loader reads reference data from the system of record.
type Loader interface {
	GetMaterial(ctx context.Context, id int64) (domain.Material, error)
	GetMachine(ctx context.Context, id int64) (domain.Machine, error)
}

type entry[T any] struct {
	value    T
	loadedAt time.Time
}

// Cache is a read-through cache of materials and machines handed to the
// calculators. Writers to the catalog must call the matching Invalidate
// method after commit.
//
// Cache is safe for concurrent use. Concurrent misses for the same key share
// one load.
type Cache struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time

	mu         sync.RWMutex
	materials  map[int64]entry[domain.Material]
	machines   map[int64]entry[domain.Machine]
	generation uint64
	flight     singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL bounds how long an entry is served without reloading. Zero keeps
// entries until invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache backed by loader.
func New(loader Loader, opts ...Option) *Cache {
	c := &Cache{
		loader:    loader,
		now:       time.Now,
		materials: make(map[int64]entry[domain.Material]),
		machines:  make(map[int64]entry[domain.Machine]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats reports cache hit and miss counters.
type Stats struct {
	Hits   int64
	Misses int64
}

func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Material returns the material with id, loading it on a miss.
func (c *Cache) Material(ctx context.Context, id int64) (domain.Material, error) {
	return getOrLoad(ctx, c, c.materials, "material:"+strconv.FormatInt(id, 10), id, c.loader.GetMaterial)
}

// Machine returns the machine with id, loading it on a miss.
func (c *Cache) Machine(ctx context.Context, id int64) (domain.Machine, error) {
	return getOrLoad(ctx, c, c.machines, "machine:"+strconv.FormatInt(id, 10), id, c.loader.GetMachine)
}

// InvalidateMaterial drops a cached material.
func (c *Cache) InvalidateMaterial(id int64) {
	c.mu.Lock()
	delete(c.materials, id)
	c.generation++
	c.mu.Unlock()
	c.flight.Forget("material:" + strconv.FormatInt(id, 10))
}

// InvalidateMachine drops a cached machine.
func (c *Cache) InvalidateMachine(id int64) {
	c.mu.Lock()
	delete(c.machines, id)
	c.generation++
	c.mu.Unlock()
	c.flight.Forget("machine:" + strconv.FormatInt(id, 10))
}

// InvalidateAll empties the cache. Used when a material group changes, since
// its density is folded into every material of the group.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	clear(c.materials)
	clear(c.machines)
	c.generation++
	c.mu.Unlock()
}

func getOrLoad[T any](ctx context.Context, c *Cache, m map[int64]entry[T], key string, id int64, load func(context.Context, int64) (T, error)) (T, error) {
	c.mu.RLock()
	e, ok := m[id]
	gen := c.generation
	c.mu.RUnlock()
	if ok && (c.ttl <= 0 || c.now().Sub(e.loadedAt) < c.ttl) {
		c.hits.Add(1)
		return e.value, nil
	}
	c.misses.Add(1)

	v, err, _ := c.flight.Do(key, func() (any, error) {
		value, err := load(ctx, id)
		if err != nil {
			return value, err
		}
		c.mu.Lock()
		// A load that raced with an invalidation must not repopulate the cache.
		if c.generation == gen {
			m[id] = entry[T]{value: value, loadedAt: c.now()}
		}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
