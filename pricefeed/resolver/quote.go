package resolver

import (
	"time"

	ethcmn "github.com/ethereum/go-ethereum/common"

	"github.com/quantor-network/tokenprice/pricefeed/fixedpoint"
)

// Source identifies which price source produced a quote.
type Source int

const (
	SourceOffChain Source = iota
	SourceStablecoin
	SourceOnChainHelper
	SourceOnChainAggregatorImplied
)

func (s Source) String() string {
	switch s {
	case SourceOffChain:
		return "offchain"
	case SourceStablecoin:
		return "stablecoin"
	case SourceOnChainHelper:
		return "onchain_helper"
	case SourceOnChainAggregatorImplied:
		return "onchain_aggregator_implied"
	default:
		return "unknown"
	}
}

// Quote is a single resolved USD price observation. It is immutable once
// constructed. A zero Price means the price is currently unknown, not that
// the token trades at $0; consumers must check IsZero before using it.
type Quote struct {
	Token      ethcmn.Address
	Price      fixedpoint.Amount
	ObservedAt time.Time
	Source     Source
}

func newQuote(token ethcmn.Address, price fixedpoint.Amount, source Source) Quote {
	return Quote{
		Token:      token,
		Price:      price,
		ObservedAt: time.Now(),
		Source:     source,
	}
}
