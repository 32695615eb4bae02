// Package provider abstracts the EVM node connection required for on-chain
// price reads. Only the read-only call surface is exposed; transaction
// submission is out of scope for this service.
package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EVMProvider is the Ethereum node endpoint used for contract reads. The
// blockNumber argument of CallContract selects the historical state to read
// from; nil means the latest block.
type EVMProvider interface {
	bind.ContractCaller

	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
}

// NewEVMProvider wraps an RPC client connection into an EVMProvider.
func NewEVMProvider(rc *rpc.Client) EVMProvider {
	return ethclient.NewClient(rc)
}

// DialContext connects to an Ethereum node at the given RPC endpoint.
func DialContext(ctx context.Context, rawurl string) (EVMProvider, error) {
	rc, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}

	return NewEVMProvider(rc), nil
}
