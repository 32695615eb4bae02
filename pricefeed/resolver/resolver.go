// Package resolver turns a token address into a USD price by walking an
// ordered fallback chain: off-chain API first (cheapest, no block staleness),
// then the direct on-chain helper oracle, then a price implied from a
// stablecoin swap simulation (always computable given a liquid market, but
// least accurate). The chain recovers locally at every stage; when every
// source degrades, the result is the zero sentinel, never an error.
package resolver

import (
	"context"
	"math/big"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/quantor-network/tokenprice/pricefeed/fixedpoint"
)

// PriceScale is the decimals convention of every resolved USD price.
const PriceScale uint32 = 8

const (
	// swapParts is how many routes the aggregator may split the simulated
	// swap across.
	swapParts int64 = 10
	swapFlags int64 = 0
)

var (
	usdcAddress = ethcmn.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	usdtAddress = ethcmn.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")

	// daiAddress is the stablecoin leg of the swap simulation. DAI has 18
	// decimals, so one whole coin is the 10^18 probe amount below.
	daiAddress      = ethcmn.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	swapProbeAmount = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// usdStablecoins short-circuit the on-chain chain with a constant $1.00.
	usdStablecoins = map[ethcmn.Address]struct{}{
		usdcAddress: {},
		usdtAddress: {},
	}
)

// OffChainSource fetches a USD price from an HTTP price API as a decimal
// value. Failures are transient; the resolver falls through to the on-chain
// sources.
type OffChainSource interface {
	QueryUSDPrice(ctx context.Context, token ethcmn.Address) (decimal.Decimal, error)
}

// HelperSource reads the USD value of a token amount from the helper oracle
// contract, scaled by 10^8. Zero means no usable route, not an error.
type HelperSource interface {
	QueryTokenValue(
		ctx context.Context,
		token ethcmn.Address,
		unitAmount *big.Int,
		router ethcmn.Address,
		blockNum *big.Int,
	) (*big.Int, error)
}

// AggregatorSource simulates a swap on the DEX aggregator router and returns
// the expected return amount in destToken base units.
type AggregatorSource interface {
	QueryExpectedReturn(
		ctx context.Context,
		router ethcmn.Address,
		fromToken ethcmn.Address,
		destToken ethcmn.Address,
		amount *big.Int,
		parts *big.Int,
		flags *big.Int,
		blockNum *big.Int,
	) (*big.Int, error)
}

// ReferenceFeed serves the shared stablecoin/USD reference price at scale 8.
type ReferenceFeed interface {
	Latest(ctx context.Context) (fixedpoint.Amount, error)
}

// QueryOption customizes a single resolution.
type QueryOption func(*queryOptions)

type queryOptions struct {
	blockNum     *big.Int
	router       ethcmn.Address
	skipOffChain bool
}

// WithBlockNumber pins on-chain reads to a historical block instead of the
// latest state.
func WithBlockNumber(blockNum *big.Int) QueryOption {
	return func(q *queryOptions) {
		q.blockNum = blockNum
	}
}

// WithRouter overrides the aggregator router address for this resolution.
func WithRouter(router ethcmn.Address) QueryOption {
	return func(q *queryOptions) {
		q.router = router
	}
}

// WithoutOffChain skips the off-chain source and resolves on-chain only.
func WithoutOffChain() QueryOption {
	return func(q *queryOptions) {
		q.skipOffChain = true
	}
}

func applyOptions(opts []QueryOption) queryOptions {
	var q queryOptions
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Resolver implements the fallback chain over the four price sources.
type Resolver struct {
	logger        zerolog.Logger
	offChain      OffChainSource
	helper        HelperSource
	aggregator    AggregatorSource
	referenceFeed ReferenceFeed
}

func New(
	logger zerolog.Logger,
	offChain OffChainSource,
	helper HelperSource,
	aggregator AggregatorSource,
	referenceFeed ReferenceFeed,
) *Resolver {
	return &Resolver{
		logger:        logger.With().Str("module", "price_resolver").Logger(),
		offChain:      offChain,
		helper:        helper,
		aggregator:    aggregator,
		referenceFeed: referenceFeed,
	}
}

// Resolve walks the fallback chain and returns the first successful quote.
// When every source degrades the returned quote carries the zero sentinel;
// the only error return is a context cancellation.
func (r *Resolver) Resolve(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...QueryOption) (Quote, error) {
	q := applyOptions(opts)

	var sourceErrs *multierror.Error

	if !q.skipOffChain {
		price, err := r.offChain.QueryUSDPrice(ctx, token)
		if err == nil {
			return newQuote(token, fixedpoint.FromDecimal(price, PriceScale), SourceOffChain), nil
		}

		sourceErrs = multierror.Append(sourceErrs, err)
		r.logger.Debug().Err(err).Str("token", token.Hex()).Msg("off-chain source failed, falling through")
	}

	if _, ok := usdStablecoins[token]; ok {
		return newQuote(token, oneUSD(), SourceStablecoin), nil
	}

	helperValue, err := r.helper.QueryTokenValue(ctx, token, pow10(decimals), q.router, q.blockNum)
	switch {
	case err != nil:
		sourceErrs = multierror.Append(sourceErrs, err)
		r.logger.Debug().Err(err).Str("token", token.Hex()).Msg("helper oracle failed, falling through")
	case helperValue.Sign() != 0:
		return newQuote(token, fixedpoint.New(helperValue, PriceScale), SourceOnChainHelper), nil
	}

	quote, err := r.impliedQuote(ctx, token, decimals, q)
	if err != nil {
		if ctx.Err() != nil {
			return Quote{}, ctx.Err()
		}

		sourceErrs = multierror.Append(sourceErrs, err)
		r.logger.Warn().
			Err(sourceErrs.ErrorOrNil()).
			Str("token", token.Hex()).
			Msg("every price source degraded, returning zero sentinel")

		return newQuote(token, fixedpoint.Zero(PriceScale), SourceOnChainAggregatorImplied), nil
	}

	return quote, nil
}

// ImpliedPrice is the standalone swap-simulation path. It always returns a
// quote, degrading to the zero sentinel when the computation fails.
func (r *Resolver) ImpliedPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...QueryOption) (Quote, error) {
	q := applyOptions(opts)

	quote, err := r.impliedQuote(ctx, token, decimals, q)
	if err != nil {
		if ctx.Err() != nil {
			return Quote{}, ctx.Err()
		}

		r.logger.Warn().Err(err).Str("token", token.Hex()).Msg("implied price degraded to zero sentinel")
		return newQuote(token, fixedpoint.Zero(PriceScale), SourceOnChainAggregatorImplied), nil
	}

	return quote, nil
}

// HelperPrice is the standalone direct-oracle path.
func (r *Resolver) HelperPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...QueryOption) (Quote, error) {
	q := applyOptions(opts)

	helperValue, err := r.helper.QueryTokenValue(ctx, token, pow10(decimals), q.router, q.blockNum)
	if err != nil {
		return Quote{}, err
	}

	return newQuote(token, fixedpoint.New(helperValue, PriceScale), SourceOnChainHelper), nil
}

// impliedQuote derives the token price by simulating a one-DAI swap into the
// token and re-pricing the stablecoin leg through the reference feed. The
// aggregator quote and the reference read run concurrently and fail as a
// unit: price = 10^decimals * referencePrice / returnAmount, at scale 8.
func (r *Resolver) impliedQuote(ctx context.Context, token ethcmn.Address, decimals uint8, q queryOptions) (Quote, error) {
	var (
		returnAmount *big.Int
		refPrice     fixedpoint.Amount
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		returnAmount, err = r.aggregator.QueryExpectedReturn(
			gctx,
			q.router,
			daiAddress,
			token,
			swapProbeAmount,
			big.NewInt(swapParts),
			big.NewInt(swapFlags),
			q.blockNum,
		)
		return err
	})

	g.Go(func() (err error) {
		refPrice, err = r.referenceFeed.Latest(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return Quote{}, err
	}

	unitValue := fixedpoint.New(pow10(decimals), 0)

	implied, err := unitValue.Mul(refPrice).Div(fixedpoint.New(returnAmount, 0))
	if err != nil {
		// returnAmount == 0, no liquidity for the probe swap
		return Quote{}, err
	}

	return newQuote(token, implied, SourceOnChainAggregatorImplied), nil
}

func oneUSD() fixedpoint.Amount {
	return fixedpoint.NewFromInt64(100000000, PriceScale)
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
