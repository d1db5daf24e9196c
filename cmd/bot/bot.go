// Package bot wires the collaborators together and runs the monitoring
// loop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexarb/dexarb/chain"
	"github.com/apexarb/dexarb/config"
	"github.com/apexarb/dexarb/engine"
	"github.com/apexarb/dexarb/notify"
	"github.com/apexarb/dexarb/oracle"
	"github.com/apexarb/dexarb/quote"
	"github.com/apexarb/dexarb/types"
	"github.com/apexarb/dexarb/utils/metrics"
	"github.com/apexarb/dexarb/venue"
)

// counterSymbol is the intermediate token every hop pair trades against.
const counterSymbol = "WETH"

// pathFinder is the slice of the search the loop consumes.
type pathFinder interface {
	FindBestPath(ctx context.Context, token types.TokenRef, inputAmountRaw *big.Int) (*types.ProfitabilityResult, error)
}

// Bot owns the monitoring loop: each tick it scans the watchlist, searches
// for a profitable path per token and hands any find to the execution gate.
type Bot struct {
	cfg      *config.Config
	logger   *zap.Logger
	eth      *ethclient.Client
	chain    chain.Client
	registry *venue.Registry
	quotes   *quote.Provider
	finder   pathFinder
	gate     *engine.Gate
	stats    *engine.RunningStats
	notifier notify.Notifier
	metrics  *metrics.BotMetrics
	promSrv  *http.Server

	watchlist []types.TokenRef
	counter   types.TokenRef
	wallet    common.Address

	wg sync.WaitGroup
}

// New dials the chain, loads the venue catalog and wires every collaborator.
// submitter may be nil, which leaves the bot in read-only mode: it discovers
// and reports opportunities but never trades.
func New(cfg *config.Config, submitter chain.SwapSubmitter, logger *zap.Logger) (*Bot, error) {
	eth, err := dial(cfg, logger)
	if err != nil {
		return nil, err
	}

	ethChain, err := chain.NewEthChain(eth, submitter, logger)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to create chain client: %w", err)
	}

	source := oracle.NewCoinGeckoWithBaseURL(cfg.OracleURL, cfg.OracleTimeout, logger)
	b, err := NewWithClient(cfg, ethChain, source, logger)
	if err != nil {
		eth.Close()
		return nil, err
	}
	b.eth = eth
	return b, nil
}

// NewWithClient wires every collaborator on top of an already constructed
// chain client and price source.
func NewWithClient(cfg *config.Config, c chain.Client, source oracle.PriceSource, logger *zap.Logger) (*Bot, error) {
	catalog, err := config.LoadCatalog(cfg.VenueCatalogPath)
	if err != nil {
		return nil, err
	}
	venues, err := catalog.BuildVenues()
	if err != nil {
		return nil, err
	}
	tokens, err := catalog.BuildTokens()
	if err != nil {
		return nil, err
	}

	var registryOpts []venue.Option
	if cfg.RegistryAllowOverwrite {
		registryOpts = append(registryOpts, venue.AllowOverwrite())
	}
	registry := venue.NewRegistry(logger, registryOpts...)
	for _, v := range venues {
		if err := registry.Add(v); err != nil {
			return nil, err
		}
	}

	counter, ok := tokens[counterSymbol]
	if !ok {
		return nil, fmt.Errorf("%w: venue catalog defines no %s token", types.ErrConfigInvalid, counterSymbol)
	}
	var watchlist []types.TokenRef
	for _, symbol := range cfg.TokenWatchlist {
		if symbol == counterSymbol {
			continue
		}
		token, ok := tokens[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: watchlist token %s not in venue catalog", types.ErrConfigInvalid, symbol)
		}
		watchlist = append(watchlist, token)
	}
	if len(watchlist) == 0 {
		return nil, fmt.Errorf("%w: token watchlist is empty", types.ErrConfigInvalid)
	}

	var botMetrics *metrics.BotMetrics
	if cfg.PrometheusEnabled {
		botMetrics = metrics.NewBotMetrics(cfg.MetricsNamespace)
	}

	quotes, err := quote.NewProvider(c, source, registry, quote.Options{
		CacheTTL:      cfg.PriceCacheTTL,
		OracleTimeout: cfg.OracleTimeout,
		RPCTimeout:    cfg.RPCTimeout,
		Metrics:       botMetrics,
	}, logger)
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Telegram.Enabled {
		notifier = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	}

	evaluator := engine.NewEvaluator(registry, quotes, logger)
	finder, err := engine.NewFinder(registry, evaluator, quotes, engine.FinderConfig{
		MaxHops:             cfg.MaxHops,
		MaxConcurrentQuotes: cfg.MaxConcurrentQuotes,
		MinLiquidityUsd:     cfg.MinLiquidityUsd,
		CounterToken:        counter,
		Metrics:             botMetrics,
	}, logger)
	if err != nil {
		return nil, err
	}

	stats := engine.NewRunningStats()
	wallet := common.HexToAddress(cfg.WalletAddress)
	gate, err := engine.NewGate(c, quotes, registry, stats, notifier, engine.GateConfig{
		MaxGasPriceWei: cfg.MaxGasPriceWei(),
		Recipient:      wallet,
		CounterToken:   counter,
		SwapDeadline:   cfg.SwapDeadline,
		Metrics:        botMetrics,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &Bot{
		cfg:       cfg,
		logger:    logger,
		chain:     c,
		registry:  registry,
		quotes:    quotes,
		finder:    finder,
		gate:      gate,
		stats:     stats,
		notifier:  notifier,
		metrics:   botMetrics,
		watchlist: watchlist,
		counter:   counter,
		wallet:    wallet,
	}, nil
}

// dial tries the primary endpoint first, then each backup in order.
func dial(cfg *config.Config, logger *zap.Logger) (*ethclient.Client, error) {
	endpoints := append([]string{cfg.RPCEndpoint}, cfg.BackupRPCEndpoints...)

	var lastErr error
	for _, endpoint := range endpoints {
		client, err := ethclient.Dial(endpoint)
		if err != nil {
			logger.Warn("Failed to connect to RPC endpoint",
				zap.String("endpoint", endpoint),
				zap.Error(err))
			lastErr = err
			continue
		}
		logger.Info("Connected to RPC endpoint", zap.String("endpoint", endpoint))
		return client, nil
	}
	return nil, fmt.Errorf("%w: all RPC endpoints failed: %v", types.ErrRPCUnavailable, lastErr)
}

// Start runs the monitoring loop until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting arbitrage bot",
		zap.Int("venues", b.registry.Len()),
		zap.Int("watchlist", len(b.watchlist)),
		zap.Duration("check_interval", b.cfg.CheckInterval))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.monitorLoop(ctx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.statusLoop(ctx)
	}()

	if b.cfg.PrometheusEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		b.promSrv = &http.Server{Addr: b.cfg.PrometheusEndpoint, Handler: mux}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.logger.Info("Serving metrics", zap.String("endpoint", b.cfg.PrometheusEndpoint))
			if err := b.promSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	return nil
}

// Stop initiates a cooperative shutdown: the gate stops authorizing new
// executions and the loops drain. An execution already past the gate runs to
// its end; a swap is never interrupted mid-hop.
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage bot")
	b.gate.Shutdown()
	if b.promSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.promSrv.Shutdown(shutdownCtx); err != nil {
			b.logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}
	b.wg.Wait()
	if b.eth != nil {
		b.eth.Close()
	}
	b.logger.Info("Arbitrage bot stopped", zap.Any("final_stats", b.stats.Snapshot()))
}

func (b *Bot) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.CheckInterval)
	defer ticker.Stop()

	disconnects := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.chain.IsConnected() {
				disconnects++
				if b.cfg.MaxReconnects > 0 && disconnects > b.cfg.MaxReconnects {
					b.logger.Error("Node connection not recovering, giving up",
						zap.Int("attempts", disconnects-1),
						zap.Int("max_reconnects", b.cfg.MaxReconnects))
					return
				}
				b.logger.Warn("Node connection lost, backing off",
					zap.Int("attempt", disconnects),
					zap.Duration("backoff", b.cfg.ReconnectBackoff))
				select {
				case <-ctx.Done():
					return
				case <-time.After(b.cfg.ReconnectBackoff):
				}
				continue
			}
			disconnects = 0
			b.runCycle(ctx)
		}
	}
}

// runCycle scans every watchlist token once. A failure on one token never
// blocks the rest of the scan.
func (b *Bot) runCycle(ctx context.Context) {
	for _, token := range b.watchlist {
		if ctx.Err() != nil {
			return
		}
		if err := b.checkToken(ctx, token); err != nil {
			b.logger.Warn("Token check failed",
				zap.String("token", token.Symbol),
				zap.Error(err))
		}
	}
}

func (b *Bot) checkToken(ctx context.Context, token types.TokenRef) error {
	balance, err := b.chain.TokenBalance(ctx, token.Address, b.wallet)
	if err != nil {
		return err
	}
	if balance.Sign() <= 0 {
		return nil
	}

	minAmount, err := b.minTradeAmountRaw(ctx, token)
	if err != nil {
		return err
	}
	if balance.Cmp(minAmount) < 0 {
		b.logger.Debug("Balance below minimum trade amount",
			zap.String("token", token.Symbol),
			zap.String("balance", balance.String()),
			zap.String("minimum", minAmount.String()))
		return nil
	}

	best, err := b.finder.FindBestPath(ctx, token, balance)
	if err != nil {
		return err
	}
	if best == nil {
		return nil
	}
	if !b.clearsProfitThreshold(ctx, best) {
		return nil
	}

	b.stats.RecordOpportunity()
	if b.metrics != nil {
		b.metrics.OpportunitiesFound.Inc()
	}
	b.logger.Info("Profitable path found",
		zap.String("token", token.Symbol),
		zap.Strings("path", best.Path),
		zap.String("net_profit_usd", best.NetProfitUsd.String()),
		zap.String("roi_percent", best.RoiPercent.String()))
	b.announceOpportunity(ctx, token, best)

	outcome, err := b.gate.TryExecute(ctx, token, balance, best)
	if err != nil {
		// Precondition skips are routine outcomes of the gate's own checks,
		// not faults of the token scan.
		if errors.Is(err, types.ErrGasTooHigh) ||
			errors.Is(err, types.ErrNotProfitable) ||
			errors.Is(err, types.ErrExecutionInFlight) {
			b.logger.Info("Execution skipped",
				zap.String("token", token.Symbol),
				zap.Error(err))
			return nil
		}
		return err
	}
	b.logger.Info("Execution settled",
		zap.String("token", token.Symbol),
		zap.Bool("success", outcome.Success),
		zap.Int("hops_completed", outcome.HopsCompleted),
		zap.String("final_amount", outcome.FinalAmount.String()))
	return nil
}

// minTradeAmountRaw converts the ETH-denominated floor into raw units of the
// searched token at current prices.
func (b *Bot) minTradeAmountRaw(ctx context.Context, token types.TokenRef) (*big.Int, error) {
	if b.cfg.MinTradeAmountEth.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	ethPrice, err := b.quotes.EthUsdPrice(ctx)
	if err != nil {
		return nil, err
	}
	tokenPrice, err := b.quotes.UsdPrice(ctx, token.PriceKey)
	if err != nil {
		return nil, err
	}
	if tokenPrice.Sign() <= 0 {
		return nil, types.ErrPriceUnavailable
	}

	minUsd := b.cfg.MinTradeAmountEth.Mul(ethPrice)
	return minUsd.Div(tokenPrice).Shift(int32(token.Decimals)).Floor().BigInt(), nil
}

// clearsProfitThreshold applies the configured minimum profit, expressed in
// ETH, to a USD-denominated verdict.
func (b *Bot) clearsProfitThreshold(ctx context.Context, result *types.ProfitabilityResult) bool {
	if b.cfg.MinProfitThresholdEth.Sign() <= 0 {
		return true
	}
	ethPrice, err := b.quotes.EthUsdPrice(ctx)
	if err != nil || ethPrice.Sign() <= 0 {
		// No conversion available: fail closed rather than trade blind.
		return false
	}
	thresholdUsd := b.cfg.MinProfitThresholdEth.Mul(ethPrice)
	return result.NetProfitUsd.GreaterThanOrEqual(thresholdUsd)
}

// announceOpportunity fires the opportunity notification without blocking
// the trading path.
func (b *Bot) announceOpportunity(ctx context.Context, token types.TokenRef, result *types.ProfitabilityResult) {
	event := notify.OpportunityEvent{
		TokenSymbol:  token.Symbol,
		Path:         result.Path,
		InputAmount:  result.InputAmount,
		FinalAmount:  result.FinalAmount,
		NetProfitUsd: result.NetProfitUsd,
		GasCostEth:   result.GasCostEth,
		GasCostUsd:   result.GasCostUsd,
		RoiPercent:   result.RoiPercent,
	}
	if status, err := b.quotes.Status(ctx); err == nil {
		event.EthPriceUsd = status.EthPriceUsd
		event.GasPriceGwei = status.GasPriceGwei
		event.BlockNumber = status.BlockNumber
	}

	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := b.notifier.NotifyOpportunity(notifyCtx, event); err != nil {
			b.logger.Warn("Opportunity notification failed", zap.Error(err))
		}
	}()
}

func (b *Bot) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sendStatus(ctx)
		}
	}
}

func (b *Bot) sendStatus(ctx context.Context) {
	snap := b.stats.Snapshot()
	event := notify.StatusEvent{
		OpportunitiesFound: snap.OpportunitiesFound,
		SuccessfulTrades:   snap.SuccessfulTrades,
		FailedTrades:       snap.FailedTrades,
		TotalProfitEth:     snap.TotalProfitEth,
		TotalProfitUsd:     snap.TotalProfitUsd,
		RuntimeHours:       decimal.NewFromFloat(snap.Uptime.Hours()),
	}
	if status, err := b.quotes.Status(ctx); err == nil {
		event.EthPriceUsd = status.EthPriceUsd
		event.GasPriceGwei = status.GasPriceGwei
		event.BlockNumber = status.BlockNumber
	}

	if err := b.notifier.NotifyStatus(ctx, event); err != nil {
		b.logger.Warn("Status notification failed", zap.Error(err))
	}
	b.logger.Info("Status update",
		zap.Uint64("opportunities", snap.OpportunitiesFound),
		zap.Uint64("successful_trades", snap.SuccessfulTrades),
		zap.Uint64("failed_trades", snap.FailedTrades),
		zap.String("total_profit_usd", snap.TotalProfitUsd.String()))
}

// Stats exposes the running counters for the CLI status command.
func (b *Bot) Stats() engine.StatsSnapshot {
	return b.stats.Snapshot()
}

// ScanOnce runs a single read-only search across the watchlist and returns
// the best verdict per token symbol, profitable or not found excluded.
// Nothing is executed. The probe size is the configured minimum trade
// amount, or one whole token when no minimum is set.
func (b *Bot) ScanOnce(ctx context.Context) (map[string]*types.ProfitabilityResult, error) {
	results := make(map[string]*types.ProfitabilityResult)
	for _, token := range b.watchlist {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		probe, err := b.minTradeAmountRaw(ctx, token)
		if err != nil {
			b.logger.Warn("Cannot size probe for token",
				zap.String("token", token.Symbol),
				zap.Error(err))
			continue
		}
		if probe.Sign() <= 0 {
			probe = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(token.Decimals)), nil)
		}

		best, err := b.finder.FindBestPath(ctx, token, probe)
		if err != nil {
			b.logger.Warn("Scan failed for token",
				zap.String("token", token.Symbol),
				zap.Error(err))
			continue
		}
		if best != nil {
			results[token.Symbol] = best
		}
	}
	return results, nil
}
