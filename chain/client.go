package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/apexarb/dexarb/types"
)

const factoryABIJson = `[{
	"constant": true,
	"inputs": [
		{"name": "tokenA", "type": "address"},
		{"name": "tokenB", "type": "address"}
	],
	"name": "getPair",
	"outputs": [{"name": "pair", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}]`

const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}]`

const erc20ABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "decimals",
	"outputs": [{"name": "", "type": "uint8"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [{"name": "_owner", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"name": "balance", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}]`

// SwapSubmitter signs and broadcasts a single swap and waits for its
// receipt. Signing and key management live outside the core; the engine only
// consumes the settled result.
type SwapSubmitter interface {
	SubmitSwap(ctx context.Context, order SwapOrder) (*SwapReceipt, error)
}

// EthChain implements Client over a go-ethereum ethclient connection.
type EthChain struct {
	client    *ethclient.Client
	submitter SwapSubmitter
	logger    *zap.Logger

	factoryABI abi.ABI
	pairABI    abi.ABI
	erc20ABI   abi.ABI

	connected atomic.Bool
}

// NewEthChain wraps an ethclient connection. submitter may be nil, in which
// case SendSwap refuses and the bot runs read-only.
func NewEthChain(client *ethclient.Client, submitter SwapSubmitter, logger *zap.Logger) (*EthChain, error) {
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	pairABI, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	c := &EthChain{
		client:     client,
		submitter:  submitter,
		logger:     logger,
		factoryABI: factoryABI,
		pairABI:    pairABI,
		erc20ABI:   erc20ABI,
	}
	c.connected.Store(true)
	return c, nil
}

// IsConnected reports the last observed connectivity state. It flips false
// on any failed node call and back to true on the next success.
func (c *EthChain) IsConnected() bool {
	return c.connected.Load()
}

func (c *EthChain) observe(err error) error {
	if err != nil {
		c.connected.Store(false)
		return err
	}
	c.connected.Store(true)
	return nil
}

// Reserves resolves the pair for (tokenA, tokenB) on the given factory and
// returns its reserves ordered to match the argument order. A missing pair
// or failed call surfaces as ErrUnavailable, never as zero reserves.
func (c *EthChain) Reserves(ctx context.Context, factory, tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	pairAddr, err := c.pairAddress(ctx, factory, tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}

	pair := bind.NewBoundContract(pairAddr, c.pairABI, c.client, c.client, c.client)

	var out []interface{}
	if err := pair.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves"); err != nil {
		c.observe(err)
		return nil, nil, fmt.Errorf("%w: getReserves on %s: %v", types.ErrUnavailable, pairAddr.Hex(), err)
	}
	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("%w: malformed getReserves response", types.ErrUnavailable)
	}

	var tok0 []interface{}
	if err := pair.Call(&bind.CallOpts{Context: ctx}, &tok0, "token0"); err != nil {
		c.observe(err)
		return nil, nil, fmt.Errorf("%w: token0 on %s: %v", types.ErrUnavailable, pairAddr.Hex(), err)
	}
	token0, ok := tok0[0].(common.Address)
	if !ok {
		return nil, nil, fmt.Errorf("%w: malformed token0 response", types.ErrUnavailable)
	}
	c.observe(nil)

	if token0 == tokenA {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

func (c *EthChain) pairAddress(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	contract := bind.NewBoundContract(factory, c.factoryABI, c.client, c.client, c.client)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPair", tokenA, tokenB); err != nil {
		c.observe(err)
		return common.Address{}, fmt.Errorf("%w: getPair: %v", types.ErrUnavailable, err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: malformed getPair response", types.ErrUnavailable)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: no pair for %s/%s", types.ErrUnavailable, tokenA.Hex(), tokenB.Hex())
	}
	return addr, nil
}

// TokenBalance returns owner's raw balance of token.
func (c *EthChain) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	contract := bind.NewBoundContract(token, c.erc20ABI, c.client, c.client, c.client)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		c.observe(err)
		return nil, fmt.Errorf("%w: balanceOf %s: %v", types.ErrUnavailable, token.Hex(), err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: malformed balanceOf response", types.ErrUnavailable)
	}
	c.observe(nil)
	return balance, nil
}

// TokenDecimals returns the token's decimals() value.
func (c *EthChain) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	contract := bind.NewBoundContract(token, c.erc20ABI, c.client, c.client, c.client)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		c.observe(err)
		return 0, fmt.Errorf("%w: decimals %s: %v", types.ErrUnavailable, token.Hex(), err)
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: malformed decimals response", types.ErrUnavailable)
	}
	c.observe(nil)
	return decimals, nil
}

// GasPrice returns the node's suggested gas price. Never cached: staleness
// corrupts the profit calculation directly.
func (c *EthChain) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		c.observe(err)
		return nil, fmt.Errorf("%w: gas price: %v", types.ErrRPCUnavailable, err)
	}
	c.observe(nil)
	return price, nil
}

// BlockNumber returns the latest block number.
func (c *EthChain) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		c.observe(err)
		return 0, fmt.Errorf("%w: block number: %v", types.ErrRPCUnavailable, err)
	}
	c.observe(nil)
	return n, nil
}

// SendSwap delegates to the signing collaborator and reports the settled
// result.
func (c *EthChain) SendSwap(ctx context.Context, order SwapOrder) (*SwapReceipt, error) {
	if c.submitter == nil {
		return nil, fmt.Errorf("%w: no swap submitter configured", types.ErrExecutionFailed)
	}

	receipt, err := c.submitter.SubmitSwap(ctx, order)
	if err != nil {
		c.logger.Error("Swap submission failed",
			zap.String("router", order.Router.Hex()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", types.ErrExecutionFailed, err)
	}
	if !receipt.Success {
		return receipt, fmt.Errorf("%w: transaction %s reverted", types.ErrExecutionFailed, receipt.TxHash.Hex())
	}
	return receipt, nil
}
