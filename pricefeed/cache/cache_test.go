package cache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantor-network/tokenprice/pricefeed/fixedpoint"
	"github.com/quantor-network/tokenprice/pricefeed/resolver"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel).With().Timestamp().Logger()

func quoteWithPrice(magnitude int64) resolver.Quote {
	return resolver.Quote{
		Price:      fixedpoint.NewFromInt64(magnitude, resolver.PriceScale),
		ObservedAt: time.Now(),
		Source:     resolver.SourceOffChain,
	}
}

func TestSingleFlight(t *testing.T) {
	c := New(logger, time.Hour)
	defer c.Stop()

	var factoryCalls int64
	factory := func(ctx context.Context) (resolver.Quote, error) {
		atomic.AddInt64(&factoryCalls, 1)
		time.Sleep(50 * time.Millisecond)
		return quoteWithPrice(100000000), nil
	}

	const callers = 25

	var wg sync.WaitGroup
	results := make([]*Entry, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCreate(context.Background(), "0xabc", factory)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&factoryCalls))

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])

		quote, resolved := results[i].Latest()
		require.True(t, resolved)
		assert.True(t, quote.Price.Equal(fixedpoint.NewFromInt64(100000000, resolver.PriceScale)))
	}
}

func TestStaleWhileRevalidate(t *testing.T) {
	c := New(logger, 30*time.Millisecond)
	defer c.Stop()

	release := make(chan struct{})

	var factoryCalls int64
	factory := func(ctx context.Context) (resolver.Quote, error) {
		if atomic.AddInt64(&factoryCalls, 1) == 1 {
			return quoteWithPrice(100000000), nil
		}

		// second invocation is the background refresh; hold it until the
		// test has observed the stale value
		<-release
		return quoteWithPrice(200000000), nil
	}

	entry, err := c.GetOrCreate(context.Background(), "0xabc", factory)
	require.NoError(t, err)

	// wait until the refresh is in flight
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&factoryCalls) >= 2
	}, time.Second, 5*time.Millisecond)

	// a new caller sees the previous value while the refresh is pending
	entry2, err := c.GetOrCreate(context.Background(), "0xabc", factory)
	require.NoError(t, err)
	assert.Same(t, entry, entry2)

	quote, resolved := entry2.Latest()
	require.True(t, resolved)
	assert.True(t, quote.Price.Equal(fixedpoint.NewFromInt64(100000000, resolver.PriceScale)))

	close(release)

	require.Eventually(t, func() bool {
		quote, _ := entry.Latest()
		return quote.Price.Equal(fixedpoint.NewFromInt64(200000000, resolver.PriceScale))
	}, time.Second, 5*time.Millisecond)
}

func TestFirstFailurePropagatesAndRetriggers(t *testing.T) {
	c := New(logger, time.Hour)
	defer c.Stop()

	var factoryCalls int64
	factory := func(ctx context.Context) (resolver.Quote, error) {
		if atomic.AddInt64(&factoryCalls, 1) == 1 {
			return resolver.Quote{}, errors.New("hard adapter failure")
		}
		return quoteWithPrice(100000000), nil
	}

	_, err := c.GetOrCreate(context.Background(), "0xabc", factory)
	require.Error(t, err)

	// the key stayed unresolved, the next caller retriggers the factory
	entry, err := c.GetOrCreate(context.Background(), "0xabc", factory)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&factoryCalls))

	quote, resolved := entry.Latest()
	require.True(t, resolved)
	assert.False(t, quote.Price.IsZero())
}

func TestRefreshFailureKeepsPreviousValue(t *testing.T) {
	c := New(logger, 20*time.Millisecond)
	defer c.Stop()

	var factoryCalls int64
	factory := func(ctx context.Context) (resolver.Quote, error) {
		if atomic.AddInt64(&factoryCalls, 1) == 1 {
			return quoteWithPrice(100000000), nil
		}
		return resolver.Quote{}, errors.New("transient refresh failure")
	}

	entry, err := c.GetOrCreate(context.Background(), "0xabc", factory)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&factoryCalls) >= 3
	}, time.Second, 5*time.Millisecond)

	quote, resolved := entry.Latest()
	require.True(t, resolved)
	assert.True(t, quote.Price.Equal(fixedpoint.NewFromInt64(100000000, resolver.PriceScale)))
}

func TestIndependentKeys(t *testing.T) {
	c := New(logger, time.Hour)
	defer c.Stop()

	factoryFor := func(magnitude int64) Factory {
		return func(ctx context.Context) (resolver.Quote, error) {
			return quoteWithPrice(magnitude), nil
		}
	}

	entryA, err := c.GetOrCreate(context.Background(), "0xaaa", factoryFor(100000000))
	require.NoError(t, err)
	entryB, err := c.GetOrCreate(context.Background(), "0xbbb", factoryFor(200000000))
	require.NoError(t, err)

	quoteA, _ := entryA.Latest()
	quoteB, _ := entryB.Latest()
	assert.True(t, quoteA.Price.Equal(fixedpoint.NewFromInt64(100000000, resolver.PriceScale)))
	assert.True(t, quoteB.Price.Equal(fixedpoint.NewFromInt64(200000000, resolver.PriceScale)))
}
