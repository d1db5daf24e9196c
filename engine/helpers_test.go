package engine

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/apexarb/dexarb/chain"
	"github.com/apexarb/dexarb/types"
)

var (
	tokenAddr   = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	counterAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func usdtToken() types.TokenRef {
	return types.TokenRef{
		Symbol:   "USDT",
		Address:  tokenAddr,
		Decimals: 6,
		PriceKey: "tether",
	}
}

func wethToken() types.TokenRef {
	return types.TokenRef{
		Symbol:   "WETH",
		Address:  counterAddr,
		Decimals: 18,
		PriceKey: "ethereum",
	}
}

// stubQuotes implements QuoteSource with scripted values.
type stubQuotes struct {
	gasPriceWei *big.Int
	gasErr      error
	ethPrice    decimal.Decimal
	ethErr      error
	prices      map[string]decimal.Decimal
	priceErr    error
	reserveA    *big.Int
	reserveB    *big.Int
	reservesErr error
}

func (s *stubQuotes) UsdPrice(ctx context.Context, tokenKey string) (decimal.Decimal, error) {
	if s.priceErr != nil {
		return decimal.Zero, s.priceErr
	}
	if p, ok := s.prices[tokenKey]; ok {
		return p, nil
	}
	return decimal.Zero, types.ErrPriceUnavailable
}

func (s *stubQuotes) EthUsdPrice(ctx context.Context) (decimal.Decimal, error) {
	if s.ethErr != nil {
		return decimal.Zero, s.ethErr
	}
	return s.ethPrice, nil
}

func (s *stubQuotes) GasPriceWei(ctx context.Context) (*big.Int, error) {
	if s.gasErr != nil {
		return nil, s.gasErr
	}
	return new(big.Int).Set(s.gasPriceWei), nil
}

func (s *stubQuotes) Reserves(ctx context.Context, venueID string, tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	if s.reservesErr != nil {
		return nil, nil, s.reservesErr
	}
	return s.reserveA, s.reserveB, nil
}

// gateChain implements chain.Client for gate tests. Swaps settle against an
// in-memory balance sheet; failAtHop scripts a revert at the n-th swap.
type gateChain struct {
	mu        sync.Mutex
	swapCalls int
	failAtHop int // 1-based, 0 disables
	outputs   []*big.Int
	balances  map[common.Address]*big.Int
}

func newGateChain(outputs []*big.Int) *gateChain {
	return &gateChain{
		outputs:  outputs,
		balances: make(map[common.Address]*big.Int),
	}
}

func (m *gateChain) balance(token common.Address) *big.Int {
	if b, ok := m.balances[token]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *gateChain) Reserves(ctx context.Context, factory, tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	return big.NewInt(0), big.NewInt(0), nil
}

func (m *gateChain) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balance(token)), nil
}

func (m *gateChain) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	return 18, nil
}

func (m *gateChain) GasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

func (m *gateChain) BlockNumber(ctx context.Context) (uint64, error) {
	return 19_000_000, nil
}

func (m *gateChain) SendSwap(ctx context.Context, order chain.SwapOrder) (*chain.SwapReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.swapCalls++
	if m.failAtHop > 0 && m.swapCalls == m.failAtHop {
		return &chain.SwapReceipt{Success: false}, types.ErrExecutionFailed
	}

	out := m.outputs[m.swapCalls-1]
	dest := order.Path[len(order.Path)-1]
	m.balances[dest] = new(big.Int).Add(m.balance(dest), out)
	return &chain.SwapReceipt{
		TxHash:    common.BigToHash(big.NewInt(int64(m.swapCalls))),
		Success:   true,
		AmountOut: new(big.Int).Set(out),
	}, nil
}

func (m *gateChain) IsConnected() bool { return true }

func (m *gateChain) swapCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swapCalls
}
