// Package aggregator simulates swaps against the on-chain DEX aggregator
// router. The expected return of a stablecoin-to-token swap is the basis of
// the implied price fallback.
package aggregator

import (
	"context"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/quantor-network/tokenprice/pricefeed/ethereum/provider"
)

const aggregatorABIJSON = `[
	{
		"inputs": [
			{"internalType": "address", "name": "fromToken", "type": "address"},
			{"internalType": "address", "name": "destToken", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "uint256", "name": "parts", "type": "uint256"},
			{"internalType": "uint256", "name": "flags", "type": "uint256"}
		],
		"name": "getExpectedReturn",
		"outputs": [
			{"internalType": "uint256", "name": "returnAmount", "type": "uint256"},
			{"internalType": "uint256[]", "name": "distribution", "type": "uint256[]"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

var aggregatorABI, _ = abi.JSON(strings.NewReader(aggregatorABIJSON))

// Caller wraps the aggregator router contract. The router address is fixed
// at construction but can be overridden per call for alternative deployments.
type Caller struct {
	logger      zerolog.Logger
	evmProvider provider.EVMProvider
	address     ethcmn.Address
}

func NewCaller(logger zerolog.Logger, evmProvider provider.EVMProvider, routerAddr ethcmn.Address) *Caller {
	return &Caller{
		logger:      logger.With().Str("module", "swap_aggregator").Logger(),
		evmProvider: evmProvider,
		address:     routerAddr,
	}
}

// QueryExpectedReturn simulates swapping amount of fromToken into destToken
// split over the given number of parts, and returns the expected return
// amount in destToken base units. A zero router falls back to the default
// router configured at construction. A nil blockNum reads the latest state.
func (c *Caller) QueryExpectedReturn(
	ctx context.Context,
	router ethcmn.Address,
	fromToken ethcmn.Address,
	destToken ethcmn.Address,
	amount *big.Int,
	parts *big.Int,
	flags *big.Int,
	blockNum *big.Int,
) (*big.Int, error) {
	contractAddr := c.address
	if router != (ethcmn.Address{}) {
		contractAddr = router
	}

	input, err := aggregatorABI.Pack("getExpectedReturn", fromToken, destToken, amount, parts, flags)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack getExpectedReturn call")
	}

	out, err := c.evmProvider.CallContract(ctx, ethereum.CallMsg{
		To:   &contractAddr,
		Data: input,
	}, blockNum)
	if err != nil {
		return nil, errors.Wrapf(err, "getExpectedReturn call failed for %s -> %s", fromToken.Hex(), destToken.Hex())
	}

	res, err := aggregatorABI.Unpack("getExpectedReturn", out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack getExpectedReturn result")
	}

	returnAmount, ok := res[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected getExpectedReturn result type %T", res[0])
	}

	c.logger.Debug().
		Str("from", fromToken.Hex()).
		Str("dest", destToken.Hex()).
		Str("return_amount", returnAmount.String()).
		Msg("simulated aggregator swap")

	return returnAmount, nil
}
