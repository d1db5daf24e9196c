// Package quote serves the price, reserve and gas data the engine needs to
// evaluate candidate paths. USD prices are cached briefly and refreshed
// through a per-key single flight; gas prices are always read fresh.
package quote

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/apexarb/dexarb/chain"
	"github.com/apexarb/dexarb/oracle"
	"github.com/apexarb/dexarb/types"
	"github.com/apexarb/dexarb/utils/metrics"
	"github.com/apexarb/dexarb/venue"
)

// EthPriceKey is the oracle id used for gas cost conversion.
const EthPriceKey = "ethereum"

const priceCacheSize = 512

// Options tunes the provider. Zero values fall back to sane defaults.
type Options struct {
	CacheTTL      time.Duration // price cache freshness window
	OracleTimeout time.Duration
	RPCTimeout    time.Duration
	OracleRate    rate.Limit // outbound oracle requests per second
	OracleBurst   int
	Metrics       *metrics.BotMetrics // optional
}

func (o *Options) withDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 30 * time.Second
	}
	if o.OracleTimeout <= 0 {
		o.OracleTimeout = 5 * time.Second
	}
	if o.RPCTimeout <= 0 {
		o.RPCTimeout = 10 * time.Second
	}
	if o.OracleRate <= 0 {
		o.OracleRate = 1
	}
	if o.OracleBurst <= 0 {
		o.OracleBurst = 5
	}
}

// Provider implements the quote surface over the chain and oracle
// collaborators.
type Provider struct {
	chain    chain.Client
	source   oracle.PriceSource
	registry *venue.Registry
	logger   *zap.Logger

	opts    Options
	cache   *lru.Cache // tokenKey -> types.PriceQuote
	group   singleflight.Group
	limiter *rate.Limiter
	now     func() time.Time
}

// NewProvider wires a quote provider.
func NewProvider(c chain.Client, source oracle.PriceSource, registry *venue.Registry, opts Options, logger *zap.Logger) (*Provider, error) {
	opts.withDefaults()

	cache, err := lru.New(priceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create price cache: %w", err)
	}

	return &Provider{
		chain:    c,
		source:   source,
		registry: registry,
		logger:   logger,
		opts:     opts,
		cache:    cache,
		limiter:  rate.NewLimiter(opts.OracleRate, opts.OracleBurst),
		now:      time.Now,
	}, nil
}

// UsdPrice returns the USD price for tokenKey. A fresh cached quote is
// served directly; otherwise one fetch runs per key, with concurrent callers
// sharing its result. On oracle failure the last cached value is returned
// stale rather than failing hard; with no cached value the call fails with
// ErrPriceUnavailable.
func (p *Provider) UsdPrice(ctx context.Context, tokenKey string) (decimal.Decimal, error) {
	if q, ok := p.cachedQuote(tokenKey); ok && q.Fresh(p.now(), p.opts.CacheTTL) {
		if p.opts.Metrics != nil {
			p.opts.Metrics.OracleCacheHits.Inc()
		}
		return q.UsdPrice, nil
	}

	v, err, _ := p.group.Do(tokenKey, func() (interface{}, error) {
		// A concurrent flight may have refreshed the key while this caller
		// waited on the group.
		if q, ok := p.cachedQuote(tokenKey); ok && q.Fresh(p.now(), p.opts.CacheTTL) {
			return q.UsdPrice, nil
		}
		return p.refresh(ctx, tokenKey)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (p *Provider) refresh(ctx context.Context, tokenKey string) (decimal.Decimal, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return p.staleOrFail(tokenKey, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.OracleTimeout)
	defer cancel()

	if p.opts.Metrics != nil {
		p.opts.Metrics.OracleRequests.Inc()
	}
	price, err := p.source.TokenPrice(fetchCtx, tokenKey)
	if err != nil {
		return p.staleOrFail(tokenKey, err)
	}

	p.cache.Add(tokenKey, types.PriceQuote{
		TokenKey:  tokenKey,
		UsdPrice:  price,
		FetchedAt: p.now(),
	})
	return price, nil
}

// staleOrFail prefers a stale cached price over a hard failure. The stale
// value is still a real observed price; zero never is.
func (p *Provider) staleOrFail(tokenKey string, cause error) (decimal.Decimal, error) {
	if q, ok := p.cachedQuote(tokenKey); ok {
		p.logger.Warn("Oracle fetch failed, serving stale price",
			zap.String("token", tokenKey),
			zap.Time("fetched_at", q.FetchedAt),
			zap.Error(cause))
		return q.UsdPrice, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s: %v", types.ErrPriceUnavailable, tokenKey, cause)
}

func (p *Provider) cachedQuote(tokenKey string) (types.PriceQuote, bool) {
	v, ok := p.cache.Get(tokenKey)
	if !ok {
		return types.PriceQuote{}, false
	}
	return v.(types.PriceQuote), true
}

// EthUsdPrice is a convenience for the gas cost conversion.
func (p *Provider) EthUsdPrice(ctx context.Context) (decimal.Decimal, error) {
	return p.UsdPrice(ctx, EthPriceKey)
}

// GasPriceWei reads the current gas price from the node. Never cached: the
// price moves block to block and staleness corrupts profit estimates.
func (p *Provider) GasPriceWei(ctx context.Context) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.RPCTimeout)
	defer cancel()
	return p.chain.GasPrice(callCtx)
}

// Reserves returns the pool reserves for (tokenA, tokenB) on the given
// venue. Failure surfaces as an error distinct from a legitimately empty
// pool.
func (p *Provider) Reserves(ctx context.Context, venueID string, tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	v, err := p.registry.Get(venueID)
	if err != nil {
		return nil, nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.opts.RPCTimeout)
	defer cancel()
	return p.chain.Reserves(callCtx, v.Factory, tokenA, tokenB)
}

// NetworkStatus is a point-in-time snapshot for status reporting.
type NetworkStatus struct {
	BlockNumber  uint64
	GasPriceGwei decimal.Decimal
	EthPriceUsd  decimal.Decimal
}

// Status gathers the current network snapshot.
func (p *Provider) Status(ctx context.Context) (*NetworkStatus, error) {
	block, err := p.chain.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	gasPrice, err := p.GasPriceWei(ctx)
	if err != nil {
		return nil, err
	}
	ethPrice, err := p.EthUsdPrice(ctx)
	if err != nil {
		return nil, err
	}
	return &NetworkStatus{
		BlockNumber:  block,
		GasPriceGwei: decimal.NewFromBigInt(gasPrice, -9),
		EthPriceUsd:  ethPrice,
	}, nil
}
