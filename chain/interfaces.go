// Package chain wraps Ethereum node access behind a narrow interface so the
// engine can be driven by a mock in tests and survive node outages at
// runtime.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapOrder describes one swap to submit through a venue router.
type SwapOrder struct {
	Router       common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     *big.Int
}

// SwapReceipt is the settled result of one submitted swap.
type SwapReceipt struct {
	TxHash    common.Hash
	Success   bool
	AmountOut *big.Int
}

// Client is the chain collaborator consumed by the core. A disconnected or
// failing node surfaces as an error on each call, never as a hang; callers
// bound every call with a context deadline.
type Client interface {
	// Reserves returns the pool reserves for (tokenA, tokenB) on the venue
	// behind factory. The returned values are ordered to match the token
	// arguments, not the pool's internal token0/token1 order.
	Reserves(ctx context.Context, factory, tokenA, tokenB common.Address) (*big.Int, *big.Int, error)

	// TokenBalance returns owner's raw balance of token.
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)

	// TokenDecimals returns the token's decimals() value.
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)

	// GasPrice returns the current suggested gas price in wei.
	GasPrice(ctx context.Context) (*big.Int, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// SendSwap submits a swap through the given router and waits for the
	// receipt. The realized output amount is read back from the chain.
	SendSwap(ctx context.Context, order SwapOrder) (*SwapReceipt, error)

	// IsConnected reports the last known connectivity state.
	IsConnected() bool
}
