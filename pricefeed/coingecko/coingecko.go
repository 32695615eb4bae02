package coingecko

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	maxRespTime        = 15 * time.Second
	maxRespHeadersTime = 15 * time.Second
)

// PriceFeed queries token USD prices from the CoinGecko HTTP API. Prices are
// decoded as decimal strings, never as binary floats, so they can feed the
// fixed-point pipeline without rounding divergence.
type PriceFeed struct {
	client *http.Client
	config *Config

	logger zerolog.Logger
}

type Config struct {
	BaseURL string
}

func urlJoin(baseURL string, segments ...string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		panic(err)
	}
	u.Path = path.Join(append([]string{u.Path}, segments...)...)
	return u.String()
}

type priceResponse map[string]struct {
	USD json.Number `json:"usd"`
}

// QueryUSDPrice returns the current USD price for the given ERC20 contract.
// A missing or zero quote is reported as an error so the caller can fall
// through to the on-chain sources.
func (cp *PriceFeed) QueryUSDPrice(ctx context.Context, erc20Contract common.Address) (decimal.Decimal, error) {
	u, err := url.ParseRequestURI(urlJoin(cp.config.BaseURL, "simple", "token_price", "ethereum"))
	if err != nil {
		cp.logger.Fatal().Err(err).Msg("failed to parse URL")
	}

	contractAddr := strings.ToLower(erc20Contract.String())

	q := make(url.Values)
	q.Set("contract_addresses", contractAddr)
	q.Set("vs_currencies", "usd")
	u.RawQuery = q.Encode()

	reqURL := u.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		cp.logger.Fatal().Err(err).Msg("failed to create HTTP request")
	}

	resp, err := cp.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "failed to fetch price from %s", reqURL)
	}

	defer resp.Body.Close()

	var respBody priceResponse

	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "failed to parse response body from %s", reqURL)
	}

	rawPrice := respBody[contractAddr].USD
	if len(rawPrice) == 0 {
		return decimal.Decimal{}, errors.Errorf("no price returned for token %s", erc20Contract.Hex())
	}

	price, err := decimal.NewFromString(rawPrice.String())
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "malformed price %q for token %s", rawPrice, erc20Contract.Hex())
	}

	if price.IsZero() {
		return decimal.Decimal{}, errors.Errorf("failed to get price for token %s", erc20Contract.Hex())
	}

	return price, nil
}

// NewPriceFeed returns an off-chain USD price puller backed by CoinGecko.
func NewPriceFeed(logger zerolog.Logger, endpointConfig *Config) *PriceFeed {
	return &PriceFeed{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: maxRespHeadersTime,
			},
			Timeout: maxRespTime,
		},
		config: checkConfig(endpointConfig),
		logger: logger.With().Str("module", "coingecko_pricefeed").Logger(),
	}
}

func checkConfig(cfg *Config) *Config {
	if cfg == nil {
		cfg = &Config{}
	}

	if len(cfg.BaseURL) == 0 {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}

	return cfg
}
