package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/knadh/koanf"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/quantor-network/tokenprice/pricefeed/fixedpoint"
	"github.com/quantor-network/tokenprice/pricefeed/resolver"
)

const (
	priceSourceAuto    = "auto"
	priceSourceHelper  = "helper"
	priceSourceImplied = "implied"
)

func getPriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price [token-address] [decimals]",
		Short: "Resolve the current USD price of a token once and print it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			konfig, err := parseServerConfig(cmd)
			if err != nil {
				return err
			}

			logger, err := getLogger(konfig)
			if err != nil {
				return err
			}

			token, err := parseAddress(args[0])
			if err != nil {
				return errors.Wrap(err, "invalid token address")
			}

			decimals, err := strconv.ParseUint(args[1], 10, 8)
			if err != nil {
				return errors.Wrapf(err, "invalid token decimals %q", args[1])
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			svc, err := buildService(ctx, logger, konfig)
			if err != nil {
				return err
			}
			defer svc.Stop()

			opts := queryOptions(konfig)

			var price fixedpoint.Amount
			switch source := konfig.String(flagPriceSource); source {
			case priceSourceAuto:
				price, err = svc.QueryTokenPrice(ctx, token, uint8(decimals), opts...)

			case priceSourceHelper:
				price, err = svc.QueryHelperPrice(ctx, token, uint8(decimals), opts...)

			case priceSourceImplied:
				price, err = svc.QueryImpliedPrice(ctx, token, uint8(decimals), opts...)

			default:
				return errors.Errorf("invalid price source: %s", source)
			}
			if err != nil {
				return err
			}

			if price.IsZero() {
				fmt.Fprintln(os.Stderr, "price currently unknown, retry later")
				return nil
			}

			fmt.Fprintln(os.Stdout, price.String())
			return nil
		},
	}

	cmd.Flags().String(flagPriceSource, priceSourceAuto, "Price source to use (auto|helper|implied)")
	cmd.Flags().Int64(flagBlockNumber, 0, "Pin on-chain reads to a block number (0 reads the latest state)")
	cmd.Flags().Bool(flagNoOffChain, false, "Skip the off-chain price API and resolve on-chain only")

	return cmd
}

// queryOptions translates CLI flags into resolver query options.
func queryOptions(konfig *koanf.Koanf) []resolver.QueryOption {
	var opts []resolver.QueryOption

	if blockNum := konfig.Int64(flagBlockNumber); blockNum > 0 {
		opts = append(opts, resolver.WithBlockNumber(big.NewInt(blockNum)))
	}

	if konfig.Bool(flagNoOffChain) {
		opts = append(opts, resolver.WithoutOffChain())
	}

	return opts
}
