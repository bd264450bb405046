package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/p-n-ai/pai-courses/internal/course"
	"github.com/p-n-ai/pai-courses/internal/platform/cache"
)

// Namespace is the cache key namespace of hierarchy bundles.
const Namespace = "content"

// Config configures a Cache.
type Config struct {
	Store  cache.Store
	Graphs course.GraphProvider
	// TTL bounds how long a bundle may stay in the store. Zero keeps it
	// until it is invalidated.
	TTL time.Duration
	Now func() time.Time
}

// Cache serves course hierarchies from a cache store, rebuilding them from
// the graph provider on a miss.
type Cache struct {
	store  cache.Store
	graphs course.GraphProvider
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu  sync.Mutex
	gen map[int64]uint64
	// stale marks ids whose invalidation could not delete the stored bundle.
	stale map[int64]bool
}

// NewCache creates a hierarchy cache.
func NewCache(cfg Config) (*Cache, error) {
	if cfg.Store == nil {
		return nil, errors.New("content cache: store is required")
	}
	if cfg.Graphs == nil {
		return nil, errors.New("content cache: graph provider is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		store:  cfg.Store,
		graphs: cfg.Graphs,
		ttl:    cfg.TTL,
		now:    now,
		gen:    make(map[int64]uint64),
		stale:  make(map[int64]bool),
	}, nil
}

// Content returns a view over the current hierarchy of a course instance.
// Store failures are logged and treated as misses.
func (c *Cache) Content(ctx context.Context, instanceID int64) (*View, error) {
	key := cache.NewKey(Namespace, instanceID)

	if b, ok := c.load(ctx, instanceID, key); ok {
		lookupsTotal.WithLabelValues("hit").Inc()
		return NewView(b), nil
	}
	lookupsTotal.WithLabelValues("miss").Inc()

	res, err, _ := c.group.Do(strconv.FormatInt(instanceID, 10), func() (any, error) {
		if b, ok := c.load(ctx, instanceID, key); ok {
			return b, nil
		}
		return c.rebuild(ctx, instanceID, key)
	})
	if err != nil {
		return nil, err
	}
	b, ok := res.(*Bundle)
	if !ok {
		return nil, fmt.Errorf("unexpected bundle type %T", res)
	}
	return NewView(b), nil
}

// Invalidate drops the cached hierarchy of a course instance. The next read
// rebuilds it.
func (c *Cache) Invalidate(ctx context.Context, instanceID int64) error {
	c.mu.Lock()
	c.gen[instanceID]++
	c.mu.Unlock()
	c.group.Forget(strconv.FormatInt(instanceID, 10))
	invalidationsTotal.Inc()

	if err := c.store.Delete(ctx, cache.NewKey(Namespace, instanceID)); err != nil {
		storeErrorsTotal.WithLabelValues("delete").Inc()
		c.mu.Lock()
		c.stale[instanceID] = true
		c.mu.Unlock()
		return fmt.Errorf("invalidate course %d: %w", instanceID, err)
	}
	return nil
}

func (c *Cache) generation(instanceID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[instanceID]
}

func (c *Cache) isStale(instanceID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale[instanceID]
}

// load returns the stored bundle unless the store misses, fails, or still
// holds a bundle an invalidation could not delete.
func (c *Cache) load(ctx context.Context, instanceID int64, key cache.Key) (*Bundle, bool) {
	if c.isStale(instanceID) {
		return nil, false
	}
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			storeErrorsTotal.WithLabelValues("get").Inc()
			slog.Warn("content cache unavailable, rebuilding", "key", key.String(), "error", err)
		}
		return nil, false
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		slog.Warn("discarding undecodable hierarchy bundle", "key", key.String(), "error", err)
		return nil, false
	}
	return &b, true
}

func (c *Cache) rebuild(ctx context.Context, instanceID int64, key cache.Key) (*Bundle, error) {
	start := time.Now()
	gen := c.generation(instanceID)

	inst, err := c.graphs.CourseGraph(ctx, instanceID)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			return nil, fmt.Errorf("course %d: %w", instanceID, ErrNotFound)
		}
		return nil, fmt.Errorf("load course %d: %w", instanceID, err)
	}

	b, err := Build(inst, c.now())
	if err != nil {
		return nil, fmt.Errorf("build course %d: %w", instanceID, err)
	}
	buildDuration.Observe(time.Since(start).Seconds())
	slog.Debug("hierarchy built", "instance_id", instanceID, "nodes", len(b.Flat))

	// A bundle read before an invalidation must not be stored after it.
	if c.generation(instanceID) != gen {
		return b, nil
	}

	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode course %d: %w", instanceID, err)
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		storeErrorsTotal.WithLabelValues("set").Inc()
		slog.Warn("storing hierarchy failed", "key", key.String(), "error", err)
		return b, nil
	}
	c.mu.Lock()
	if c.gen[instanceID] == gen {
		delete(c.stale, instanceID)
		c.mu.Unlock()
		return b, nil
	}
	c.mu.Unlock()
	_ = c.store.Delete(ctx, key)
	return b, nil
}
