package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel).With().Timestamp().Logger()

func TestQueryUSDPrice(t *testing.T) {
	expected := `{"0xdac17f958d2ee523a2206206994597c13d831ec7":{"usd":0.998233}}`
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, expected)
	}))
	defer svr.Close()
	feed := NewPriceFeed(logger, &Config{BaseURL: svr.URL})

	price, err := feed.QueryUSDPrice(context.Background(), common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7"))
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.998233")))
}

func TestQueryUSDPriceMissingToken(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer svr.Close()
	feed := NewPriceFeed(logger, &Config{BaseURL: svr.URL})

	_, err := feed.QueryUSDPrice(context.Background(), common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7"))
	assert.Error(t, err)
}

func TestQueryUSDPriceZero(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"0xdac17f958d2ee523a2206206994597c13d831ec7":{"usd":0}}`)
	}))
	defer svr.Close()
	feed := NewPriceFeed(logger, &Config{BaseURL: svr.URL})

	_, err := feed.QueryUSDPrice(context.Background(), common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7"))
	assert.Error(t, err)
}

func TestQueryUSDPriceUnreachable(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	svr.Close()
	feed := NewPriceFeed(logger, &Config{BaseURL: svr.URL})

	_, err := feed.QueryUSDPrice(context.Background(), common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7"))
	assert.Error(t, err)
}
