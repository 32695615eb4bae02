// Package pricefeed exposes the USD token price service: a price resolver
// composed with a per-token refreshing cache.
package pricefeed

import (
	"context"
	"strings"
	"time"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/quantor-network/tokenprice/pricefeed/cache"
	"github.com/quantor-network/tokenprice/pricefeed/fixedpoint"
	"github.com/quantor-network/tokenprice/pricefeed/resolver"
)

// PriceResolver is the fallback-chain resolver consumed by the service.
type PriceResolver interface {
	Resolve(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (resolver.Quote, error)
	ImpliedPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (resolver.Quote, error)
	HelperPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (resolver.Quote, error)
}

// Service is the public facade. Cached reads go through GetUSDTokenPrice;
// the Query* variants bypass the cache for a fresh resolution.
type Service struct {
	logger        zerolog.Logger
	priceResolver PriceResolver
	priceCache    *cache.Cache
}

func NewService(logger zerolog.Logger, priceResolver PriceResolver, refreshInterval time.Duration) *Service {
	return &Service{
		logger:        logger.With().Str("module", "price_service").Logger(),
		priceResolver: priceResolver,
		priceCache:    cache.New(logger, refreshInterval),
	}
}

// GetUSDTokenPrice returns the live auto-refreshing price handle for the
// token, resolving it first if it has never been requested. The entry is
// keyed by the token address alone; the decimals and options of the first
// request drive all subsequent refreshes.
func (s *Service) GetUSDTokenPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (*cache.Entry, error) {
	factory := func(ctx context.Context) (resolver.Quote, error) {
		return s.priceResolver.Resolve(ctx, token, decimals, opts...)
	}

	return s.priceCache.GetOrCreate(ctx, cacheKey(token), factory)
}

// QueryTokenPrice resolves the token price once, without touching the cache.
func (s *Service) QueryTokenPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (fixedpoint.Amount, error) {
	quote, err := s.priceResolver.Resolve(ctx, token, decimals, opts...)
	if err != nil {
		return fixedpoint.Amount{}, err
	}

	return quote.Price, nil
}

// QueryImpliedPrice resolves via the swap-simulation path only. It always
// yields a value, degrading to the zero sentinel on failure.
func (s *Service) QueryImpliedPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (fixedpoint.Amount, error) {
	quote, err := s.priceResolver.ImpliedPrice(ctx, token, decimals, opts...)
	if err != nil {
		return fixedpoint.Amount{}, err
	}

	return quote.Price, nil
}

// QueryHelperPrice resolves via the direct helper oracle only.
func (s *Service) QueryHelperPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (fixedpoint.Amount, error) {
	quote, err := s.priceResolver.HelperPrice(ctx, token, decimals, opts...)
	if err != nil {
		return fixedpoint.Amount{}, err
	}

	return quote.Price, nil
}

// Stop halts the cache refresh loops. Resolved entries stay readable.
func (s *Service) Stop() {
	s.priceCache.Stop()
}

// cacheKey normalizes a token address into its cache identity. Addresses
// compare by value, the lowercased hex just fixes the textual form.
func cacheKey(token ethcmn.Address) string {
	return strings.ToLower(token.Hex())
}
