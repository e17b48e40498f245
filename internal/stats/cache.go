package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hamed0406/healthagent/internal/domain"
)

// Loader computes a fresh snapshot, usually ResultStore.Query.
type Loader func(ctx context.Context, name string, window time.Duration) (domain.Snapshot, error)

type entry struct {
	snap domain.Snapshot
	at   time.Time
}

// Cache serves snapshots stale-while-revalidate. Within TTL the cached value
// is returned as is. Past TTL the stale value is returned and a background
// refresh is started, at most one per target across all of its windows.
// Each target keeps at most maxWindowsPerTarget windows; the least recently
// loaded one is evicted first.
type Cache struct {
	load   Loader
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	misses       singleflight.Group // name|window
	revalidating singleflight.Group // name

	mu      sync.Mutex
	entries map[string]map[time.Duration]entry
}

const (
	revalidateTimeout   = 10 * time.Second
	maxWindowsPerTarget = 8
)

func NewCache(load Loader, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		load:    load,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]map[time.Duration]entry),
	}
}

func cacheKey(name string, window time.Duration) string {
	return fmt.Sprintf("%s|%s", name, window)
}

func (c *Cache) Get(ctx context.Context, name string, window time.Duration) (domain.Snapshot, error) {
	if c.ttl <= 0 {
		return c.load(ctx, name, window)
	}
	c.mu.Lock()
	e, ok := c.entries[name][window]
	c.mu.Unlock()

	if ok {
		if c.now().Sub(e.at) >= c.ttl {
			c.revalidate(ctx, name, window)
		}
		return e.snap, nil
	}

	v, err, _ := c.misses.Do(cacheKey(name, window), func() (any, error) {
		return c.refresh(ctx, name, window)
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return v.(domain.Snapshot), nil
}

// revalidate starts a background refresh unless one is already in flight
// for the target. A window skipped here is picked up by a later stale read.
func (c *Cache) revalidate(ctx context.Context, name string, window time.Duration) {
	bg := context.WithoutCancel(ctx)
	c.revalidating.DoChan(name, func() (any, error) {
		rctx, cancel := context.WithTimeout(bg, revalidateTimeout)
		defer cancel()
		snap, err := c.refresh(rctx, name, window)
		if err != nil {
			c.logger.Warn("stats_revalidate_error", zap.String("target", name), zap.Error(err))
		}
		return snap, err
	})
}

func (c *Cache) refresh(ctx context.Context, name string, window time.Duration) (domain.Snapshot, error) {
	snap, err := c.load(ctx, name, window)
	if err != nil {
		return domain.Snapshot{}, err
	}
	c.store(name, window, snap)
	return snap, nil
}

func (c *Cache) store(name string, window time.Duration, snap domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	windows := c.entries[name]
	if windows == nil {
		windows = make(map[time.Duration]entry, 1)
		c.entries[name] = windows
	}
	if _, ok := windows[window]; !ok && len(windows) >= maxWindowsPerTarget {
		var oldest time.Duration
		var oldestAt time.Time
		first := true
		for w, e := range windows {
			if first || e.at.Before(oldestAt) {
				oldest, oldestAt, first = w, e.at, false
			}
		}
		delete(windows, oldest)
	}
	windows[window] = entry{snap: snap, at: c.now()}
}

// Len reports how many windows are cached for the named target.
func (c *Cache) Len(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries[name])
}

// Invalidate drops every cached window of the named target.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
