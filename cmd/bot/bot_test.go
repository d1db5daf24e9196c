package bot

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/apexarb/dexarb/chain"
	"github.com/apexarb/dexarb/config"
	"github.com/apexarb/dexarb/types"
)

var (
	usdtAddr = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	daiAddr  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

const testCatalog = `venues:
  - id: uniswap
    name: Uniswap V2
    router: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
    factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
    fee_rate: "0.003"
    verified: true
  - id: sushiswap
    name: SushiSwap
    router: "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"
    factory: "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac"
    fee_rate: "0.003"
    verified: true
tokens:
  - symbol: WETH
    address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    decimals: 18
    price_key: ethereum
  - symbol: USDT
    address: "0xdAC17F958D2ee523a2206206994597C13D831ec7"
    decimals: 6
    price_key: tether
  - symbol: DAI
    address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"
    decimals: 18
    price_key: dai
`

// fakeChain is an in-memory chain.Client with scriptable balances and swap
// outputs.
type fakeChain struct {
	mu        sync.Mutex
	connected bool
	gasPrice  *big.Int
	balances  map[common.Address]*big.Int
	balErr    map[common.Address]error
	outputs   []*big.Int
	failAtHop int // 1-based; 0 means never fail
	swapCalls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		connected: true,
		gasPrice:  big.NewInt(20_000_000_000), // 20 gwei
		balances:  make(map[common.Address]*big.Int),
		balErr:    make(map[common.Address]error),
	}
}

func (f *fakeChain) Reserves(ctx context.Context, factory, tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	return big.NewInt(1_000_000_000_000), big.NewInt(1_000_000_000_000), nil
}

func (f *fakeChain) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.balErr[token]; err != nil {
		return nil, err
	}
	if b, ok := f.balances[token]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	return 18, nil
}

func (f *fakeChain) GasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return 19_500_000, nil
}

func (f *fakeChain) SendSwap(ctx context.Context, order chain.SwapOrder) (*chain.SwapReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swapCalls++
	if f.failAtHop > 0 && f.swapCalls == f.failAtHop {
		return nil, types.ErrExecutionFailed
	}
	out := f.outputs[f.swapCalls-1]
	dest := order.Path[len(order.Path)-1]
	prev := f.balances[dest]
	if prev == nil {
		prev = big.NewInt(0)
	}
	f.balances[dest] = new(big.Int).Add(prev, out)
	return &chain.SwapReceipt{Success: true, AmountOut: new(big.Int).Set(out)}, nil
}

func (f *fakeChain) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChain) swapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swapCalls
}

// fakeSource is a canned oracle.PriceSource.
type fakeSource struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
}

func (f *fakeSource) TokenPrice(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return decimal.Zero, f.err
	}
	price, ok := f.prices[tokenID]
	if !ok {
		return decimal.Zero, types.ErrPriceUnavailable
	}
	return price, nil
}

// stubFinder replaces the search so loop behavior can be tested without a
// market where fees net out positive.
type stubFinder struct {
	mu     sync.Mutex
	result *types.ProfitabilityResult
	err    error
	tokens []string
}

func (s *stubFinder) FindBestPath(ctx context.Context, token types.TokenRef, inputAmountRaw *big.Int) (*types.ProfitabilityResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token.Symbol)
	return s.result, s.err
}

func (s *stubFinder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "venues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))

	cfg := config.DefaultConfig()
	cfg.WalletAddress = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	cfg.VenueCatalogPath = path
	cfg.TokenWatchlist = []string{"USDT", "DAI"}
	cfg.MinLiquidityUsd = decimal.Zero
	return cfg
}

func healthySource() *fakeSource {
	return &fakeSource{prices: map[string]decimal.Decimal{
		"ethereum": decimal.NewFromInt(2000),
		"tether":   decimal.NewFromInt(1),
		"dai":      decimal.NewFromInt(1),
	}}
}

func testBot(t *testing.T, c *fakeChain, source *fakeSource, cfg *config.Config) *Bot {
	t.Helper()
	b, err := NewWithClient(cfg, c, source, zaptest.NewLogger(t))
	require.NoError(t, err)
	return b
}

func TestNewWithClientRejectsUnknownWatchlistToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.TokenWatchlist = []string{"SHIB"}

	_, err := NewWithClient(cfg, newFakeChain(), healthySource(), zaptest.NewLogger(t))
	assert.ErrorIs(t, err, types.ErrConfigInvalid)
}

func TestNewWithClientExcludesCounterFromWatchlist(t *testing.T) {
	cfg := testConfig(t)
	cfg.TokenWatchlist = []string{"WETH", "USDT"}

	b := testBot(t, newFakeChain(), healthySource(), cfg)
	require.Len(t, b.watchlist, 1)
	assert.Equal(t, "USDT", b.watchlist[0].Symbol)
}

func TestRunCycleSurvivesTokenFailure(t *testing.T) {
	c := newFakeChain()
	c.balErr[usdtAddr] = types.ErrRPCUnavailable
	c.balances[daiAddr] = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))

	b := testBot(t, c, healthySource(), testConfig(t))
	finder := &stubFinder{}
	b.finder = finder

	b.runCycle(context.Background())

	// The USDT balance error must not stop the DAI scan.
	require.Equal(t, 1, finder.callCount())
	assert.Equal(t, []string{"DAI"}, finder.tokens)
}

func TestCheckTokenSkipsBelowMinimumAmount(t *testing.T) {
	c := newFakeChain()
	// 100 USDT, below the 0.1 ETH ($200) floor.
	c.balances[usdtAddr] = big.NewInt(100_000_000)

	b := testBot(t, c, healthySource(), testConfig(t))
	finder := &stubFinder{}
	b.finder = finder

	usdt := b.watchlist[0]
	require.Equal(t, "USDT", usdt.Symbol)
	require.NoError(t, b.checkToken(context.Background(), usdt))
	assert.Zero(t, finder.callCount(), "no search below the minimum trade amount")
}

func TestMinTradeAmountRawConversion(t *testing.T) {
	b := testBot(t, newFakeChain(), healthySource(), testConfig(t))

	// 0.1 ETH at $2000 = $200 of a $1 token with 6 decimals.
	usdt := b.watchlist[0]
	min, err := b.minTradeAmountRaw(context.Background(), usdt)
	require.NoError(t, err)
	assert.Equal(t, "200000000", min.String())
}

func TestClearsProfitThresholdConversion(t *testing.T) {
	b := testBot(t, newFakeChain(), healthySource(), testConfig(t))

	// 0.01 ETH at $2000 = $20.
	below := &types.ProfitabilityResult{NetProfitUsd: decimal.RequireFromString("19.99")}
	assert.False(t, b.clearsProfitThreshold(context.Background(), below))

	exact := &types.ProfitabilityResult{NetProfitUsd: decimal.NewFromInt(20)}
	assert.True(t, b.clearsProfitThreshold(context.Background(), exact))
}

func TestClearsProfitThresholdFailsClosedWithoutEthPrice(t *testing.T) {
	source := healthySource()
	source.err = types.ErrPriceUnavailable
	b := testBot(t, newFakeChain(), source, testConfig(t))

	verdict := &types.ProfitabilityResult{NetProfitUsd: decimal.NewFromInt(1000)}
	assert.False(t, b.clearsProfitThreshold(context.Background(), verdict))
}

func TestCheckTokenExecutesProfitableFind(t *testing.T) {
	c := newFakeChain()
	c.balances[usdtAddr] = big.NewInt(1_000_000_000) // 1000 USDT
	c.outputs = []*big.Int{
		big.NewInt(450_000_000_000_000), // hop 1: USDT -> WETH
		big.NewInt(1_010_000_000),       // hop 2: WETH -> USDT
	}

	b := testBot(t, c, healthySource(), testConfig(t))
	b.finder = &stubFinder{result: &types.ProfitabilityResult{
		Path:         types.PathCandidate{"uniswap", "sushiswap"},
		InputAmount:  big.NewInt(1_000_000_000),
		NetProfitUsd: decimal.NewFromInt(25),
		RoiPercent:   decimal.NewFromInt(2),
		Profitable:   true,
	}}

	usdt := b.watchlist[0]
	require.NoError(t, b.checkToken(context.Background(), usdt))

	assert.Equal(t, 2, c.swapCount())
	snap := b.Stats()
	assert.Equal(t, uint64(1), snap.OpportunitiesFound)
	assert.Equal(t, uint64(1), snap.SuccessfulTrades)
	assert.Zero(t, snap.FailedTrades)
}

func TestCheckTokenTreatsGateSkipAsRoutine(t *testing.T) {
	c := newFakeChain()
	c.balances[usdtAddr] = big.NewInt(1_000_000_000)
	c.gasPrice = big.NewInt(150_000_000_000) // above the 100 gwei ceiling

	b := testBot(t, c, healthySource(), testConfig(t))
	b.finder = &stubFinder{result: &types.ProfitabilityResult{
		Path:         types.PathCandidate{"uniswap", "sushiswap"},
		InputAmount:  big.NewInt(1_000_000_000),
		NetProfitUsd: decimal.NewFromInt(25),
		Profitable:   true,
	}}

	usdt := b.watchlist[0]
	// A gate precondition skip is a routine outcome, not a token fault.
	require.NoError(t, b.checkToken(context.Background(), usdt))
	assert.Zero(t, c.swapCount())
	assert.Zero(t, b.Stats().FailedTrades)
}

func TestMonitorLoopGivesUpAfterMaxReconnects(t *testing.T) {
	c := newFakeChain()
	c.connected = false

	cfg := testConfig(t)
	cfg.CheckInterval = 5 * time.Millisecond
	cfg.ReconnectBackoff = time.Millisecond
	cfg.MaxReconnects = 3

	b := testBot(t, c, healthySource(), cfg)
	finder := &stubFinder{}
	b.finder = finder

	done := make(chan struct{})
	go func() {
		b.monitorLoop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor loop did not give up on a dead connection")
	}
	assert.Zero(t, finder.callCount(), "no scan may run while disconnected")
}

func TestMonitorLoopStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.CheckInterval = 5 * time.Millisecond
	b := testBot(t, newFakeChain(), healthySource(), cfg)
	b.finder = &stubFinder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.monitorLoop(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor loop did not stop on cancel")
	}
}

func TestScanOnceReportsWithoutExecuting(t *testing.T) {
	c := newFakeChain()
	b := testBot(t, c, healthySource(), testConfig(t))
	b.finder = &stubFinder{result: &types.ProfitabilityResult{
		Path:         types.PathCandidate{"uniswap", "sushiswap"},
		NetProfitUsd: decimal.NewFromInt(3),
		Profitable:   true,
	}}

	results, err := b.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Contains(t, results, "USDT")
	assert.Contains(t, results, "DAI")
	assert.Zero(t, c.swapCount(), "a scan never trades")
}
