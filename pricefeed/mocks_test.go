package pricefeed

import (
	"context"

	ethcmn "github.com/ethereum/go-ethereum/common"

	"github.com/quantor-network/tokenprice/pricefeed/resolver"
)

type mockPriceResolver struct {
	resolveFn        func(ethcmn.Address, uint8) (resolver.Quote, error)
	resolveCallCount int

	impliedPriceFn        func(ethcmn.Address, uint8) (resolver.Quote, error)
	impliedPriceCallCount int

	helperPriceFn        func(ethcmn.Address, uint8) (resolver.Quote, error)
	helperPriceCallCount int
}

func (r *mockPriceResolver) Resolve(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (resolver.Quote, error) {
	r.resolveCallCount++
	return r.resolveFn(token, decimals)
}

func (r *mockPriceResolver) ImpliedPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (resolver.Quote, error) {
	r.impliedPriceCallCount++
	return r.impliedPriceFn(token, decimals)
}

func (r *mockPriceResolver) HelperPrice(ctx context.Context, token ethcmn.Address, decimals uint8, opts ...resolver.QueryOption) (resolver.Quote, error) {
	r.helperPriceCallCount++
	return r.helperPriceFn(token, decimals)
}
