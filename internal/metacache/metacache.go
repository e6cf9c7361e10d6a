package metacache

import (
	"context"
	"sync"
	"time"

	"groupwarden/internal/platform"

	"go.uber.org/zap"
)

// Clock abstracts time so tests can drive TTLs and delays directly.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Fetcher resolves group metadata from the transport.
type Fetcher interface {
	GroupMetadata(ctx context.Context, group platform.JID) (platform.Metadata, error)
}

type entry struct {
	meta      platform.Metadata
	fetchedAt time.Time
}

// call is one in-flight fetch. Concurrent callers for the same group wait on
// done instead of issuing their own requests.
type call struct {
	done chan struct{}
	meta platform.Metadata
	err  error
}

// Cache serves group metadata with a freshness TTL, request coalescing and a
// stale fallback when the transport fails.
type Cache struct {
	fetcher Fetcher
	clock   Clock
	logger  *zap.Logger

	freshTTL      time.Duration
	purgeTTL      time.Duration
	sweepInterval time.Duration
	clearDelay    time.Duration

	mu       sync.Mutex
	entries  map[platform.JID]entry
	inflight map[platform.JID]*call
}

type Option func(*Cache)

func WithClock(clock Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

func New(fetcher Fetcher, freshTTL, purgeTTL, sweepInterval, clearDelay time.Duration, logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		fetcher:       fetcher,
		clock:         realClock{},
		logger:        logger,
		freshTTL:      freshTTL,
		purgeTTL:      purgeTTL,
		sweepInterval: sweepInterval,
		clearDelay:    clearDelay,
		entries:       make(map[platform.JID]entry),
		inflight:      make(map[platform.JID]*call),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns metadata for the group. A cached entry younger than the fresh
// TTL is served directly unless force is set. Concurrent misses for the same
// group share one fetch; a waiter whose shared fetch failed falls through and
// issues its own request. When a fetch fails and any cached entry exists,
// the stale entry is served to the caller and every waiter.
func (c *Cache) Get(ctx context.Context, group platform.JID, force bool) (platform.Metadata, error) {
	var failed *call
	for {
		c.mu.Lock()
		if !force {
			if e, ok := c.entries[group]; ok && c.clock.Now().Sub(e.fetchedAt) < c.freshTTL {
				c.mu.Unlock()
				return e.meta, nil
			}
		}
		if inflight, ok := c.inflight[group]; ok && inflight != failed {
			c.mu.Unlock()
			select {
			case <-inflight.done:
				if inflight.err == nil {
					return inflight.meta, nil
				}
				failed = inflight
				continue
			case <-ctx.Done():
				return platform.Metadata{}, ctx.Err()
			}
		}
		break
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[group] = cl
	c.mu.Unlock()

	meta, err := c.fetcher.GroupMetadata(ctx, group)

	c.mu.Lock()
	if err == nil {
		c.entries[group] = entry{meta: meta, fetchedAt: c.clock.Now()}
	} else if stale, ok := c.entries[group]; ok {
		c.logger.Warn("metadata fetch failed, serving stale entry",
			zap.String("group_id", group.String()),
			zap.Duration("age", c.clock.Now().Sub(stale.fetchedAt)),
			zap.Error(err))
		meta, err = stale.meta, nil
	}
	cl.meta, cl.err = meta, err
	close(cl.done)
	c.mu.Unlock()

	// The record lingers briefly so a burst of events right after resolution
	// still coalesces onto the finished call.
	c.clock.AfterFunc(c.clearDelay, func() {
		c.mu.Lock()
		if c.inflight[group] == cl {
			delete(c.inflight, group)
		}
		c.mu.Unlock()
	})

	return meta, err
}

// Invalidate drops the cached entry and any lingering call record so the
// next Get always refetches.
func (c *Cache) Invalidate(group platform.JID) {
	c.mu.Lock()
	delete(c.entries, group)
	delete(c.inflight, group)
	c.mu.Unlock()
}

// StartSweeper purges entries older than the purge TTL on a fixed interval
// until ctx is cancelled.
func (c *Cache) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *Cache) sweep() {
	now := c.clock.Now()
	c.mu.Lock()
	purged := 0
	for group, e := range c.entries {
		if now.Sub(e.fetchedAt) > c.purgeTTL {
			delete(c.entries, group)
			purged++
		}
	}
	c.mu.Unlock()
	if purged > 0 {
		c.logger.Debug("metadata cache sweep", zap.Int("purged", purged))
	}
}
