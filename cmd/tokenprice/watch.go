package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/quantor-network/tokenprice/pricefeed/cache"
)

func getWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [token-address] [decimals]",
		Short: "Subscribe to a token price and print every refreshed value",
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

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			svc, err := buildService(ctx, logger, konfig)
			if err != nil {
				return err
			}
			defer svc.Stop()

			entry, err := svc.GetUSDTokenPrice(ctx, token, uint8(decimals), queryOptions(konfig)...)
			if err != nil {
				return errors.Wrap(err, "initial price resolution failed")
			}

			interval := konfig.Duration(flagRefreshInterval)
			if interval <= 0 {
				interval = cache.DefaultRefreshInterval
			}

			printQuote(entry)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil

				case <-ticker.C:
					printQuote(entry)
				}
			}
		},
	}

	cmd.Flags().Bool(flagNoOffChain, false, "Skip the off-chain price API and resolve on-chain only")

	return cmd
}

func printQuote(entry *cache.Entry) {
	quote, resolved := entry.Latest()
	if !resolved {
		return
	}

	if quote.Price.IsZero() {
		fmt.Fprintf(os.Stdout, "%s price currently unknown (source: %s)\n",
			quote.ObservedAt.Format(time.RFC3339), quote.Source)
		return
	}

	fmt.Fprintf(os.Stdout, "%s %s USD (source: %s)\n",
		quote.ObservedAt.Format(time.RFC3339), quote.Price, quote.Source)
}
