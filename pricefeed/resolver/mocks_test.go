package resolver

import (
	"context"
	"math/big"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/quantor-network/tokenprice/pricefeed/fixedpoint"
)

type mockOffChainSource struct {
	queryFn        func(ethcmn.Address) (decimal.Decimal, error)
	queryCallCount int
}

func (s *mockOffChainSource) QueryUSDPrice(ctx context.Context, token ethcmn.Address) (decimal.Decimal, error) {
	s.queryCallCount++
	return s.queryFn(token)
}

type mockHelperSource struct {
	queryFn        func(token ethcmn.Address, unitAmount *big.Int) (*big.Int, error)
	queryCallCount int
}

func (s *mockHelperSource) QueryTokenValue(
	ctx context.Context,
	token ethcmn.Address,
	unitAmount *big.Int,
	router ethcmn.Address,
	blockNum *big.Int,
) (*big.Int, error) {
	s.queryCallCount++
	return s.queryFn(token, unitAmount)
}

type mockAggregatorSource struct {
	queryFn        func(fromToken, destToken ethcmn.Address, amount *big.Int) (*big.Int, error)
	queryCallCount int
}

func (s *mockAggregatorSource) QueryExpectedReturn(
	ctx context.Context,
	router ethcmn.Address,
	fromToken ethcmn.Address,
	destToken ethcmn.Address,
	amount *big.Int,
	parts *big.Int,
	flags *big.Int,
	blockNum *big.Int,
) (*big.Int, error) {
	s.queryCallCount++
	return s.queryFn(fromToken, destToken, amount)
}

type mockReferenceFeed struct {
	latestFn        func() (fixedpoint.Amount, error)
	latestCallCount int
}

func (f *mockReferenceFeed) Latest(ctx context.Context) (fixedpoint.Amount, error) {
	f.latestCallCount++
	return f.latestFn()
}
