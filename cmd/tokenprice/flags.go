package main

import (
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	logFormatJSON = "json"
	logFormatText = "text"

	envPrefix = "TOKENPRICE_"

	flagLogLevel         = "log-level"
	flagLogFormat        = "log-format"
	flagConfig           = "config"
	flagEthRPC           = "eth-rpc"
	flagCoinGeckoAPI     = "coingecko-api"
	flagPriceHelperAddr  = "price-helper-addr"
	flagRouterAddr       = "aggregator-router-addr"
	flagReferenceFeed    = "reference-feed-addr"
	flagRefreshInterval  = "refresh-interval"
	flagFeedPollInterval = "feed-poll-interval"
	flagBlockNumber      = "block"
	flagNoOffChain       = "no-offchain"
	flagPriceSource      = "source"
)

func globalFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)

	fs.String(flagLogLevel, zerolog.InfoLevel.String(), "The logging level (trace|debug|info|warn|error|fatal|panic)")
	fs.String(flagLogFormat, logFormatText, "The logging format (json|text)")
	fs.String(flagConfig, "", "Path to an optional YAML config file")

	return fs
}

func ethereumFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)

	fs.String(flagEthRPC, "http://localhost:8545", "Specify the RPC address of an Ethereum node")
	fs.String(flagPriceHelperAddr, "", "Address of the price helper oracle contract")
	fs.String(flagRouterAddr, "0xC586BeF4a0992C495Cf22e1aeEE4E446CECf431b", "Address of the DEX aggregator router contract")
	fs.String(flagReferenceFeed, "0xAed0c38402a5d19df6E4c03F4E2DceD6e29c1ee9", "Address of the stablecoin/USD reference feed contract")
	fs.Duration(flagFeedPollInterval, 0, "Poll interval of the reference feed (0 uses the default)")

	return fs
}

func pricefeedFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)

	fs.String(flagCoinGeckoAPI, "https://api.coingecko.com/api/v3", "Specify the base URL of the CoinGecko API")
	fs.Duration(flagRefreshInterval, 0, "Refresh interval of cached prices (0 uses the default)")

	return fs
}

// parseServerConfig layers the configuration: flag defaults, then the
// optional YAML config file, then TOKENPRICE_ environment variables, then
// explicit flags.
func parseServerConfig(cmd *cobra.Command) (*koanf.Koanf, error) {
	konfig := koanf.New(".")

	if configPath, _ := cmd.Flags().GetString(flagConfig); len(configPath) > 0 {
		if err := konfig.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configPath)
		}
	}

	if err := konfig.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment variables")
	}

	if err := konfig.Load(posflag.Provider(cmd.Flags(), ".", konfig), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load command flags")
	}

	return konfig, nil
}

func getLogger(konfig *koanf.Koanf) (zerolog.Logger, error) {
	logLvl, err := zerolog.ParseLevel(konfig.String(flagLogLevel))
	if err != nil {
		return zerolog.Nop(), errors.Wrap(err, "failed to parse log level")
	}

	switch logFormat := konfig.String(flagLogFormat); logFormat {
	case logFormatJSON:
		return zerolog.New(os.Stderr).Level(logLvl).With().Timestamp().Logger(), nil

	case logFormatText:
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(logLvl).With().Timestamp().Logger(), nil

	default:
		return zerolog.Nop(), errors.Errorf("invalid logging format: %s", logFormat)
	}
}
