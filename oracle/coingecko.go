// Package oracle provides USD price feeds for tokens. The engine consumes
// the PriceSource interface; CoinGecko is the production implementation.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexarb/dexarb/types"
)

// PriceSource returns the USD price for an oracle token id. A failed fetch
// must return an error, never a zero price: a zero price makes any path look
// infinitely profitable downstream.
type PriceSource interface {
	TokenPrice(ctx context.Context, tokenID string) (decimal.Decimal, error)
}

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// CoinGecko fetches spot prices from the CoinGecko simple/price endpoint.
type CoinGecko struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewCoinGecko creates a CoinGecko price source with the given request
// timeout.
func NewCoinGecko(timeout time.Duration, logger *zap.Logger) *CoinGecko {
	return &CoinGecko{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// NewCoinGeckoWithBaseURL is used by tests to point the client at a local
// server.
func NewCoinGeckoWithBaseURL(baseURL string, timeout time.Duration, logger *zap.Logger) *CoinGecko {
	c := NewCoinGecko(timeout, logger)
	c.baseURL = baseURL
	return c
}

// TokenPrice returns the USD price for tokenID.
func (c *CoinGecko) TokenPrice(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?%s", c.baseURL, url.Values{
		"ids":           {tokenID},
		"vs_currencies": {"usd"},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: build price request: %v", types.ErrPriceUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: fetch %s: %v", types.ErrPriceUnavailable, tokenID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Price fetch returned non-OK status",
			zap.String("token", tokenID),
			zap.Int("status", resp.StatusCode))
		return decimal.Zero, fmt.Errorf("%w: fetch %s: status %d", types.ErrPriceUnavailable, tokenID, resp.StatusCode)
	}

	// {"ethereum": {"usd": 2000.12}}
	var body map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode %s response: %v", types.ErrPriceUnavailable, tokenID, err)
	}

	raw, ok := body[tokenID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no usd price for %s", types.ErrPriceUnavailable, tokenID)
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: parse price for %s: %v", types.ErrPriceUnavailable, tokenID, err)
	}
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive price for %s", types.ErrPriceUnavailable, tokenID)
	}
	return price, nil
}
