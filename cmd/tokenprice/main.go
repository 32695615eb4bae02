package main

import (
	"context"
	"os"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/knadh/koanf"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quantor-network/tokenprice/pricefeed"
	"github.com/quantor-network/tokenprice/pricefeed/coingecko"
	"github.com/quantor-network/tokenprice/pricefeed/ethereum/aggregator"
	"github.com/quantor-network/tokenprice/pricefeed/ethereum/chainlink"
	"github.com/quantor-network/tokenprice/pricefeed/ethereum/pricehelper"
	"github.com/quantor-network/tokenprice/pricefeed/ethereum/provider"
	"github.com/quantor-network/tokenprice/pricefeed/resolver"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd returns the tokenprice CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "tokenprice",
		Short:        "USD token price resolver backed by off-chain and on-chain oracles",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().AddFlagSet(globalFlagSet())
	rootCmd.PersistentFlags().AddFlagSet(ethereumFlagSet())
	rootCmd.PersistentFlags().AddFlagSet(pricefeedFlagSet())

	rootCmd.AddCommand(
		getPriceCmd(),
		getWatchCmd(),
	)

	return rootCmd
}

// buildService wires the oracle adapters into the price service.
func buildService(ctx context.Context, logger zerolog.Logger, konfig *koanf.Koanf) (*pricefeed.Service, error) {
	evmProvider, err := provider.DialContext(ctx, konfig.String(flagEthRPC))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to Ethereum RPC at %s", konfig.String(flagEthRPC))
	}

	helperAddr, err := parseAddress(konfig.String(flagPriceHelperAddr))
	if err != nil {
		return nil, errors.Wrap(err, "invalid price helper address")
	}

	routerAddr, err := parseAddress(konfig.String(flagRouterAddr))
	if err != nil {
		return nil, errors.Wrap(err, "invalid aggregator router address")
	}

	feedAddr, err := parseAddress(konfig.String(flagReferenceFeed))
	if err != nil {
		return nil, errors.Wrap(err, "invalid reference feed address")
	}

	offChainFeed := coingecko.NewPriceFeed(logger, &coingecko.Config{
		BaseURL: konfig.String(flagCoinGeckoAPI),
	})

	priceResolver := resolver.New(
		logger,
		offChainFeed,
		pricehelper.NewCaller(logger, evmProvider, helperAddr),
		aggregator.NewCaller(logger, evmProvider, routerAddr),
		chainlink.NewFeed(ctx, logger, evmProvider, feedAddr, konfig.Duration(flagFeedPollInterval)),
	)

	return pricefeed.NewService(logger, priceResolver, konfig.Duration(flagRefreshInterval)), nil
}

func parseAddress(addr string) (ethcmn.Address, error) {
	if !ethcmn.IsHexAddress(addr) {
		return ethcmn.Address{}, errors.Errorf("not a hex address: %q", addr)
	}

	return ethcmn.HexToAddress(addr), nil
}
