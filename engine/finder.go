package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apexarb/dexarb/types"
	"github.com/apexarb/dexarb/utils/metrics"
	"github.com/apexarb/dexarb/venue"
)

// FinderConfig bounds the path search.
type FinderConfig struct {
	// MaxHops caps path length. Values below 1 are rejected; MaxHops of 1
	// legitimately yields zero candidates since a path needs two hops, and
	// only even lengths up to the cap are enumerated.
	MaxHops int
	// MaxConcurrentQuotes caps simultaneous candidate evaluations, and with
	// them outbound quote calls. Defaults to 8.
	MaxConcurrentQuotes int
	// MinLiquidityUsd drops venues whose pool for the searched token holds
	// less than this USD value. Zero disables the filter.
	MinLiquidityUsd decimal.Decimal
	// CounterToken is the pairing token used for the liquidity probe
	// (typically WETH).
	CounterToken types.TokenRef
	// Metrics is optional.
	Metrics *metrics.BotMetrics
}

// PathEvaluator produces a profitability verdict for one candidate path.
type PathEvaluator interface {
	Evaluate(ctx context.Context, token types.TokenRef, inputAmountRaw *big.Int, path types.PathCandidate) (*types.ProfitabilityResult, error)
}

// Finder enumerates candidate venue sequences and keeps the most profitable
// verdict.
type Finder struct {
	registry  *venue.Registry
	evaluator PathEvaluator
	quotes    QuoteSource
	cfg       FinderConfig
	logger    *zap.Logger
}

// NewFinder creates a path search over the given registry and evaluator.
func NewFinder(registry *venue.Registry, evaluator PathEvaluator, quotes QuoteSource, cfg FinderConfig, logger *zap.Logger) (*Finder, error) {
	if cfg.MaxHops < 1 {
		return nil, fmt.Errorf("%w: max hops must be at least 1, got %d", types.ErrConfigInvalid, cfg.MaxHops)
	}
	if cfg.MaxConcurrentQuotes <= 0 {
		cfg.MaxConcurrentQuotes = 8
	}
	return &Finder{
		registry:  registry,
		evaluator: evaluator,
		quotes:    quotes,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// FindBestPath searches all ordered venue permutations of even length up to
// MaxHops over the verified venues and returns the profitable candidate with
// the highest net profit, or nil when none is profitable.
//
// Enumeration is lexicographic over the id-sorted venue list, and ties on
// net profit resolve to the earliest-enumerated candidate, so two runs over
// identical quote data return identical results even though candidates are
// evaluated concurrently.
func (f *Finder) FindBestPath(ctx context.Context, token types.TokenRef, inputAmountRaw *big.Int) (*types.ProfitabilityResult, error) {
	verified := f.registry.ListVerified()
	if f.registry.Len() == 0 || len(verified) == 0 {
		return nil, types.ErrNoVenues
	}

	verified = f.filterByLiquidity(ctx, token, verified)
	if len(verified) == 0 {
		f.logger.Warn("No venue passed the liquidity filter this cycle",
			zap.String("token", token.Symbol))
		return nil, nil
	}

	ids := make([]string, len(verified))
	for i, v := range verified {
		ids[i] = v.ID
	}

	var candidates []types.PathCandidate
	// Even hop counts only: each hop flips between the searched token and
	// the counter token, so an odd-length path cannot close back to the
	// token it started in.
	for k := 2; k <= f.cfg.MaxHops; k += 2 {
		candidates = appendPermutations(candidates, ids, k)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if f.cfg.Metrics != nil {
		timer := prometheus.NewTimer(f.cfg.Metrics.SearchDuration)
		defer timer.ObserveDuration()
	}

	var (
		mu       sync.Mutex
		best     *types.ProfitabilityResult
		bestIdx  int
		examined int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrentQuotes)

	for idx, candidate := range candidates {
		idx, candidate := idx, candidate
		g.Go(func() error {
			result, err := f.evaluator.Evaluate(gctx, token, inputAmountRaw, candidate)
			if f.cfg.Metrics != nil {
				f.cfg.Metrics.PathsEvaluated.Inc()
			}
			if err != nil {
				// Transient quote failures skip the candidate for this
				// cycle; they never abort the search.
				if f.cfg.Metrics != nil {
					f.cfg.Metrics.CandidatesSkipped.Inc()
				}
				f.logger.Warn("Skipping candidate",
					zap.Strings("path", candidate),
					zap.Error(err))
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			examined++
			if !result.Profitable {
				return nil
			}
			switch {
			case best == nil,
				result.NetProfitUsd.GreaterThan(best.NetProfitUsd),
				result.NetProfitUsd.Equal(best.NetProfitUsd) && idx < bestIdx:
				best = result
				bestIdx = idx
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.logger.Debug("Path search complete",
		zap.String("token", token.Symbol),
		zap.Int("candidates", len(candidates)),
		zap.Int("examined", examined),
		zap.Bool("found", best != nil))
	return best, nil
}

// filterByLiquidity drops venues whose (token, counter) pool is thinner than
// the configured USD floor. An unavailable reserve read drops the venue for
// this cycle only.
func (f *Finder) filterByLiquidity(ctx context.Context, token types.TokenRef, venues []venue.Venue) []venue.Venue {
	if f.cfg.MinLiquidityUsd.IsZero() {
		return venues
	}

	price, err := f.quotes.UsdPrice(ctx, token.PriceKey)
	if err != nil {
		f.logger.Warn("Liquidity filter has no token price, keeping all venues",
			zap.String("token", token.Symbol),
			zap.Error(err))
		return venues
	}

	keep := make([]bool, len(venues))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrentQuotes)

	for i, v := range venues {
		i, v := i, v
		g.Go(func() error {
			reserveToken, _, err := f.quotes.Reserves(gctx, v.ID, token.Address, f.cfg.CounterToken.Address)
			if err != nil {
				f.logger.Warn("Reserve read failed, dropping venue for this cycle",
					zap.String("venue", v.ID),
					zap.Error(err))
				return nil
			}
			// Pool value approximated as twice the token side.
			liquidityUsd := decimal.NewFromBigInt(reserveToken, -int32(token.Decimals)).Mul(price).Mul(decimal.NewFromInt(2))
			keep[i] = liquidityUsd.GreaterThanOrEqual(f.cfg.MinLiquidityUsd)
			if !keep[i] {
				f.logger.Debug("Venue below liquidity floor",
					zap.String("venue", v.ID),
					zap.String("liquidity_usd", liquidityUsd.String()))
			}
			return nil
		})
	}
	_ = g.Wait()

	out := venues[:0:0]
	for i, v := range venues {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}

// appendPermutations appends all ordered k-permutations of ids, without
// repetition inside one path, in lexicographic order over the input
// ordering. Permutations rather than combinations: the fee-only model is
// order-insensitive today, but slippage-aware pricing will not be.
func appendPermutations(dst []types.PathCandidate, ids []string, k int) []types.PathCandidate {
	if k <= 0 || k > len(ids) {
		return dst
	}

	used := make([]bool, len(ids))
	current := make([]string, 0, k)

	var walk func()
	walk = func() {
		if len(current) == k {
			dst = append(dst, types.PathCandidate(current).Clone())
			return
		}
		for i, id := range ids {
			if used[i] {
				continue
			}
			used[i] = true
			current = append(current, id)
			walk()
			current = current[:len(current)-1]
			used[i] = false
		}
	}
	walk()
	return dst
}
