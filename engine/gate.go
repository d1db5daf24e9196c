package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexarb/dexarb/chain"
	"github.com/apexarb/dexarb/notify"
	"github.com/apexarb/dexarb/types"
	"github.com/apexarb/dexarb/utils/metrics"
	"github.com/apexarb/dexarb/venue"
)

// GateConfig configures the execution gate.
type GateConfig struct {
	// MaxGasPriceWei is the hard ceiling: no execution is authorized while
	// the fresh gas price reads above it.
	MaxGasPriceWei *big.Int
	// Recipient receives swap outputs.
	Recipient common.Address
	// CounterToken is the intermediate token the hop pairs trade against.
	CounterToken types.TokenRef
	// SwapDeadline bounds each submitted swap (default 2 minutes).
	SwapDeadline time.Duration
	// Metrics is optional.
	Metrics *metrics.BotMetrics
}

// Gate is the decision layer between a profitable verdict and real on-chain
// execution. It re-checks live preconditions, serializes executions per
// token, and owns all RunningStats mutation.
type Gate struct {
	chain    chain.Client
	quotes   QuoteSource
	registry *venue.Registry
	stats    *RunningStats
	notifier notify.Notifier
	cfg      GateConfig
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]bool // token symbol -> execution pending
	shutdown atomic.Bool
}

// NewGate creates an execution gate.
func NewGate(c chain.Client, quotes QuoteSource, registry *venue.Registry, stats *RunningStats, notifier notify.Notifier, cfg GateConfig, logger *zap.Logger) (*Gate, error) {
	if cfg.MaxGasPriceWei == nil || cfg.MaxGasPriceWei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: max gas price must be positive", types.ErrConfigInvalid)
	}
	if cfg.SwapDeadline <= 0 {
		cfg.SwapDeadline = 2 * time.Minute
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Gate{
		chain:    c,
		quotes:   quotes,
		registry: registry,
		stats:    stats,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Shutdown stops the gate from authorizing further executions. In-flight
// attempts run to their natural end; a swap is never interrupted mid-hop.
func (g *Gate) Shutdown() {
	g.shutdown.Store(true)
}

// TryExecute re-validates preconditions and, if authorized, executes the
// path hop by hop. Each hop's realized output is re-read from the chain and
// funds the next hop; the simulated estimate is a decision aid only. A hop
// failure terminates the attempt with no retry and no rollback: earlier
// hops are already settled transactions, and the outcome reports that
// partial state explicitly.
func (g *Gate) TryExecute(ctx context.Context, token types.TokenRef, amountRaw *big.Int, result *types.ProfitabilityResult) (*types.ExecutionOutcome, error) {
	if g.shutdown.Load() {
		return nil, types.ErrShutdown
	}

	release, err := g.acquire(token.Symbol)
	if err != nil {
		return nil, err
	}
	defer release()

	gasPrice, err := g.quotes.GasPriceWei(ctx)
	if err != nil {
		return nil, err
	}
	if g.cfg.Metrics != nil {
		gp, _ := new(big.Float).SetInt(gasPrice).Float64()
		g.cfg.Metrics.GasPrice.Observe(gp)
	}
	if gasPrice.Cmp(g.cfg.MaxGasPriceWei) > 0 {
		g.logger.Info("Gas price above ceiling, skipping execution",
			zap.String("token", token.Symbol),
			zap.String("gas_price_wei", gasPrice.String()),
			zap.String("ceiling_wei", g.cfg.MaxGasPriceWei.String()))
		g.skip("gas_too_high")
		return nil, types.ErrGasTooHigh
	}

	if result == nil || !result.Profitable {
		g.skip("not_profitable")
		return nil, types.ErrNotProfitable
	}
	if len(result.Path)%2 != 0 {
		// An odd-length path would leave the position stranded in the
		// counter token instead of closing back to the searched token.
		g.skip("odd_path")
		return nil, fmt.Errorf("%w: %d-hop path cannot return to %s", types.ErrConfigInvalid, len(result.Path), token.Symbol)
	}

	outcome := g.executePath(ctx, token, amountRaw, result.Path)
	g.settle(ctx, token, result, outcome)

	if !outcome.Success {
		return outcome, fmt.Errorf("%w: %s", types.ErrExecutionFailed, outcome.Detail)
	}
	return outcome, nil
}

// acquire claims the per-token execution slot. At most one execution may be
// in flight per token: a second authorization would race against the
// unsettled balance change of the first.
func (g *Gate) acquire(symbol string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight == nil {
		g.inflight = make(map[string]bool)
	}
	if g.inflight[symbol] {
		return nil, fmt.Errorf("%w: %s", types.ErrExecutionInFlight, symbol)
	}
	g.inflight[symbol] = true
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.inflight, symbol)
	}, nil
}

// executePath runs the swap sequence. Hops alternate token -> counter ->
// token; TryExecute admits even path lengths only, so the sequence always
// closes back in the searched token.
func (g *Gate) executePath(ctx context.Context, token types.TokenRef, amountRaw *big.Int, path types.PathCandidate) *types.ExecutionOutcome {
	current := new(big.Int).Set(amountRaw)

	for i, venueID := range path {
		v, err := g.registry.Get(venueID)
		if err != nil {
			return failedOutcome(i, current, fmt.Sprintf("hop %d: %v", i+1, err))
		}

		tokenIn, tokenOut := token.Address, g.cfg.CounterToken.Address
		if i%2 == 1 {
			tokenIn, tokenOut = tokenOut, tokenIn
		}

		realized, err := g.executeHop(ctx, v, tokenIn, tokenOut, current)
		if err != nil {
			g.logger.Error("Hop execution failed",
				zap.String("token", token.Symbol),
				zap.String("venue", venueID),
				zap.Int("hop", i+1),
				zap.Int("hops_completed", i),
				zap.Error(err))
			return failedOutcome(i, current, fmt.Sprintf("hop %d on %s: %v", i+1, venueID, err))
		}

		g.logger.Info("Hop executed",
			zap.String("token", token.Symbol),
			zap.String("venue", venueID),
			zap.Int("hop", i+1),
			zap.String("amount_in", current.String()),
			zap.String("amount_out", realized.String()))
		current = realized
	}

	return &types.ExecutionOutcome{
		Success:       true,
		HopsCompleted: len(path),
		FinalAmount:   current,
		Detail:        "all hops settled",
	}
}

// executeHop submits one swap and returns the realized output, re-read from
// the chain rather than trusted from the simulation.
func (g *Gate) executeHop(ctx context.Context, v venue.Venue, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	preBalance, err := g.chain.TokenBalance(ctx, tokenOut, g.cfg.Recipient)
	if err != nil {
		return nil, err
	}

	deadline := big.NewInt(time.Now().Add(g.cfg.SwapDeadline).Unix())
	receipt, err := g.chain.SendSwap(ctx, chain.SwapOrder{
		Router:       v.Router,
		AmountIn:     amountIn,
		AmountOutMin: big.NewInt(0),
		Path:         []common.Address{tokenIn, tokenOut},
		Recipient:    g.cfg.Recipient,
		Deadline:     deadline,
	})
	if err != nil {
		return nil, err
	}

	postBalance, err := g.chain.TokenBalance(ctx, tokenOut, g.cfg.Recipient)
	if err == nil {
		if realized := new(big.Int).Sub(postBalance, preBalance); realized.Sign() > 0 {
			return realized, nil
		}
	}
	// Balance re-read failed or showed no delta; the receipt amount is the
	// remaining source of truth.
	if receipt.AmountOut != nil && receipt.AmountOut.Sign() > 0 {
		return receipt.AmountOut, nil
	}
	return nil, fmt.Errorf("%w: realized output unknown for tx %s", types.ErrExecutionFailed, receipt.TxHash.Hex())
}

// settle updates stats exactly once per attempt and fires the notification
// without letting its outcome touch control flow.
func (g *Gate) settle(ctx context.Context, token types.TokenRef, result *types.ProfitabilityResult, outcome *types.ExecutionOutcome) {
	if outcome.Success {
		profitEth := decimal.Zero
		if ethPrice, err := g.quotes.EthUsdPrice(ctx); err == nil && !ethPrice.IsZero() {
			profitEth = result.NetProfitUsd.Div(ethPrice)
		}
		g.stats.RecordSuccess(profitEth, result.NetProfitUsd)
		if g.cfg.Metrics != nil {
			g.cfg.Metrics.TradesExecuted.Inc()
			pf, _ := result.NetProfitUsd.Float64()
			g.cfg.Metrics.ProfitUsd.Add(pf)
		}
	} else {
		g.stats.RecordFailure()
		if g.cfg.Metrics != nil {
			g.cfg.Metrics.TradesFailed.Inc()
		}
	}

	event := notify.ExecutionEvent{
		TokenSymbol:   token.Symbol,
		Success:       outcome.Success,
		Partial:       outcome.Partial,
		HopsCompleted: outcome.HopsCompleted,
		ProfitUsd:     result.NetProfitUsd,
		RoiPercent:    result.RoiPercent,
		Detail:        outcome.Detail,
	}
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := g.notifier.NotifyExecutionResult(notifyCtx, event); err != nil {
			g.logger.Warn("Execution notification failed", zap.Error(err))
		}
	}()
}

func (g *Gate) skip(reason string) {
	if g.cfg.Metrics != nil {
		g.cfg.Metrics.GateSkips.WithLabelValues(reason).Inc()
	}
}

func failedOutcome(hopsCompleted int, lastAmount *big.Int, detail string) *types.ExecutionOutcome {
	return &types.ExecutionOutcome{
		Success:       false,
		HopsCompleted: hopsCompleted,
		Partial:       hopsCompleted > 0,
		FinalAmount:   new(big.Int).Set(lastAmount),
		Detail:        detail,
	}
}
