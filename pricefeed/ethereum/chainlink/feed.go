// Package chainlink maintains a long-lived subscription to a single trusted
// reference price feed (stablecoin/USD). The latest answer is cached and
// shared across all price resolutions; it refreshes continuously in the
// background and retries transient failures up to a fixed bound before the
// subscription is considered broken.
package chainlink

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/quantor-network/tokenprice/pricefeed/ethereum/provider"
	"github.com/quantor-network/tokenprice/pricefeed/fixedpoint"
	"github.com/quantor-network/tokenprice/pricefeed/loops"
)

const (
	// feedScale is the decimals convention of USD reference feeds.
	feedScale uint32 = 8

	// maxFetchAttempts bounds retries of a single refresh before the
	// subscription surfaces a terminal failure.
	maxFetchAttempts uint = 5

	defaultPollInterval = 10 * time.Second
)

var (
	// ErrFeedTerminated is returned by Latest once the subscription exhausted
	// its retries. A broken feed does not auto-recover; reconnection policy
	// belongs to the process supervisor.
	ErrFeedTerminated = errors.New("reference feed subscription terminated")

	aggregatorV3ABI, _ = abi.JSON(strings.NewReader(`[
		{
			"inputs": [],
			"name": "latestAnswer",
			"outputs": [{"internalType": "int256", "name": "", "type": "int256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`))
)

// Feed polls the reference aggregator contract and replays the latest answer
// to every caller. The first successful read makes the value permanently
// available until the next refresh overwrites it.
type Feed struct {
	logger      zerolog.Logger
	evmProvider provider.EVMProvider
	address     ethcmn.Address
	interval    time.Duration

	group singleflight.Group

	mu          sync.RWMutex
	latest      fixedpoint.Amount
	hasValue    bool
	terminalErr error
}

// NewFeed creates the feed and starts its background poll loop, which runs
// until ctx is cancelled or the subscription breaks.
func NewFeed(
	ctx context.Context,
	logger zerolog.Logger,
	evmProvider provider.EVMProvider,
	feedAddr ethcmn.Address,
	interval time.Duration,
) *Feed {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	feed := &Feed{
		logger:      logger.With().Str("module", "reference_feed").Logger(),
		evmProvider: evmProvider,
		address:     feedAddr,
		interval:    interval,
	}

	go feed.start(ctx)

	return feed
}

// Latest returns the most recent reference price at scale 8. If no value has
// been observed yet, it performs the first fetch on demand; concurrent first
// callers share a single fetch.
func (f *Feed) Latest(ctx context.Context) (fixedpoint.Amount, error) {
	f.mu.RLock()
	if f.terminalErr != nil {
		defer f.mu.RUnlock()
		return fixedpoint.Amount{}, f.terminalErr
	}
	if f.hasValue {
		defer f.mu.RUnlock()
		return f.latest, nil
	}
	f.mu.RUnlock()

	v, err, _ := f.group.Do("latest", func() (interface{}, error) {
		return f.refresh(ctx)
	})
	if err != nil {
		return fixedpoint.Amount{}, err
	}

	return v.(fixedpoint.Amount), nil
}

func (f *Feed) start(ctx context.Context) {
	err := loops.RunLoop(ctx, f.logger, f.interval, func() error {
		if _, err := f.refresh(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		f.logger.Err(err).Msg("reference feed poll loop exited")
	}
}

// refresh fetches the latest answer with bounded retries. Exhausting the
// retries marks the subscription broken for all current and future callers.
func (f *Feed) refresh(ctx context.Context) (fixedpoint.Amount, error) {
	f.mu.RLock()
	if terminalErr := f.terminalErr; terminalErr != nil {
		f.mu.RUnlock()
		return fixedpoint.Amount{}, terminalErr
	}
	f.mu.RUnlock()

	var answer *big.Int
	err := retry.Do(
		func() (err error) {
			answer, err = f.fetchLatestAnswer(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(maxFetchAttempts),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn().Err(err).Uint("attempt", n).Msg("failed to fetch reference price, will retry")
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return fixedpoint.Amount{}, ctx.Err()
		}

		terminalErr := errors.Wrap(ErrFeedTerminated, err.Error())

		f.mu.Lock()
		if f.terminalErr == nil {
			f.terminalErr = terminalErr
		}
		terminalErr = f.terminalErr
		f.mu.Unlock()

		return fixedpoint.Amount{}, terminalErr
	}

	price := fixedpoint.New(answer, feedScale)

	f.mu.Lock()
	f.latest = price
	f.hasValue = true
	f.mu.Unlock()

	return price, nil
}

func (f *Feed) fetchLatestAnswer(ctx context.Context) (*big.Int, error) {
	input, err := aggregatorV3ABI.Pack("latestAnswer")
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack latestAnswer call")
	}

	out, err := f.evmProvider.CallContract(ctx, ethereum.CallMsg{
		To:   &f.address,
		Data: input,
	}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "latestAnswer call failed for feed %s", f.address.Hex())
	}

	res, err := aggregatorV3ABI.Unpack("latestAnswer", out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack latestAnswer result")
	}

	answer, ok := res[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected latestAnswer result type %T", res[0])
	}

	if answer.Sign() <= 0 {
		return nil, errors.Errorf("reference feed %s returned non-positive answer %s", f.address.Hex(), answer)
	}

	return answer, nil
}
