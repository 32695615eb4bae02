// Package cache holds the latest resolved quote per token and refreshes it
// in the background. Resolution is single-flight per key: concurrent callers
// for one token share one factory invocation, and a refresh in flight never
// blocks readers, who keep seeing the previous good value.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/quantor-network/tokenprice/pricefeed/resolver"
)

// DefaultRefreshInterval is how often a cached quote is re-resolved when no
// interval is configured.
const DefaultRefreshInterval = 10 * time.Second

// Factory resolves the current quote for a cache key.
type Factory func(ctx context.Context) (resolver.Quote, error)

// Entry is a live handle to the latest quote of one token. A late reader
// immediately observes the last resolved value; only before the very first
// successful resolution is there nothing to observe.
type Entry struct {
	mu       sync.RWMutex
	quote    resolver.Quote
	resolved bool
}

// Latest returns the most recently resolved quote. The second return is
// false before the first successful resolution.
func (e *Entry) Latest() (resolver.Quote, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.quote, e.resolved
}

func (e *Entry) store(quote resolver.Quote) {
	e.mu.Lock()
	e.quote = quote
	e.resolved = true
	e.mu.Unlock()
}

type holder struct {
	entry          *Entry
	factory        Factory
	refreshStarted bool
}

// Cache owns the token => entry table for the process lifetime. Entries are
// created lazily and never deleted; the token universe is small and
// addresses recur across requests.
type Cache struct {
	logger   zerolog.Logger
	interval time.Duration

	group    singleflight.Group
	quit     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	entries map[string]*holder
}

func New(logger zerolog.Logger, interval time.Duration) *Cache {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	return &Cache{
		logger:   logger.With().Str("module", "price_cache").Logger(),
		interval: interval,
		quit:     make(chan struct{}),
		entries:  make(map[string]*holder),
	}
}

// GetOrCreate returns the live entry for the key, resolving it via factory
// on first access. All callers arriving before the first resolution finishes
// share a single factory invocation and receive the same result. Once an
// entry is resolved it is returned immediately, even while a background
// refresh is pending. A failed first resolution is propagated and leaves the
// key unresolved, so the next caller retriggers the factory.
func (c *Cache) GetOrCreate(ctx context.Context, key string, factory Factory) (*Entry, error) {
	c.mu.Lock()
	h, ok := c.entries[key]
	if !ok {
		h = &holder{entry: &Entry{}, factory: factory}
		c.entries[key] = h
	}
	c.mu.Unlock()

	if _, resolved := h.entry.Latest(); resolved {
		return h.entry, nil
	}

	_, err, _ := c.group.Do(key, func() (interface{}, error) {
		// another flight may have resolved the entry in the meantime
		if quote, resolved := h.entry.Latest(); resolved {
			return quote, nil
		}

		quote, err := h.factory(ctx)
		if err != nil {
			return nil, err
		}

		h.entry.store(quote)
		c.startRefresh(key, h)

		return quote, nil
	})
	if err != nil {
		return nil, err
	}

	return h.entry, nil
}

// Stop halts all background refresh loops. Cached entries remain readable.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
	})
}

func (c *Cache) startRefresh(key string, h *holder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h.refreshStarted {
		return
	}
	h.refreshStarted = true

	go c.refreshLoop(key, h)
}

func (c *Cache) refreshLoop(key string, h *holder) {
	for {
		select {
		case <-c.quit:
			return

		case <-time.After(c.interval):
			c.refresh(key, h)
		}
	}
}

// refresh re-resolves the key in the background. The previous value stays
// observable while the factory runs, and it is kept when the factory fails.
func (c *Cache) refresh(key string, h *holder) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return h.factory(context.Background())
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("price refresh failed, keeping previous value")
		return
	}

	h.entry.store(v.(resolver.Quote))
}
