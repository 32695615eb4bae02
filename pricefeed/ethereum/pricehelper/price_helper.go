// Package pricehelper reads the USD value of a token amount from the helper
// oracle contract. This is a direct on-chain quote, preferred over the
// swap-simulation path because it is not subject to slippage distortion.
package pricehelper

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

const priceHelperABIJSON = `[
	{
		"inputs": [
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "address", "name": "router", "type": "address"}
		],
		"name": "getTokenUsdValue",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var priceHelperABI, _ = abi.JSON(strings.NewReader(priceHelperABIJSON))

// Caller wraps the helper oracle contract deployed at a fixed address.
type Caller struct {
	logger      zerolog.Logger
	evmProvider provider.EVMProvider
	address     ethcmn.Address
}

func NewCaller(logger zerolog.Logger, evmProvider provider.EVMProvider, contractAddr ethcmn.Address) *Caller {
	return &Caller{
		logger:      logger.With().Str("module", "price_helper").Logger(),
		evmProvider: evmProvider,
		address:     contractAddr,
	}
}

// QueryTokenValue returns the USD value of unitAmount of the token, as an
// integer scaled by 10^8. The helper may legitimately answer zero when it
// has no usable route for the token; the caller decides what zero means.
// A nil blockNum reads the latest state.
func (c *Caller) QueryTokenValue(
	ctx context.Context,
	token ethcmn.Address,
	unitAmount *big.Int,
	router ethcmn.Address,
	blockNum *big.Int,
) (*big.Int, error) {
	input, err := priceHelperABI.Pack("getTokenUsdValue", token, unitAmount, router)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack getTokenUsdValue call")
	}

	out, err := c.evmProvider.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: input,
	}, blockNum)
	if err != nil {
		return nil, errors.Wrapf(err, "getTokenUsdValue call failed for token %s", token.Hex())
	}

	res, err := priceHelperABI.Unpack("getTokenUsdValue", out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack getTokenUsdValue result")
	}

	value, ok := res[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected getTokenUsdValue result type %T", res[0])
	}

	c.logger.Debug().
		Str("token", token.Hex()).
		Str("usd_value", value.String()).
		Msg("queried helper oracle")

	return value, nil
}
