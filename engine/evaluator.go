// Package engine contains the opportunity discovery core: path evaluation,
// path search and the execution gate.
package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexarb/dexarb/gas"
	"github.com/apexarb/dexarb/types"
	"github.com/apexarb/dexarb/venue"
)

// QuoteSource is the slice of the quote provider the engine consumes.
type QuoteSource interface {
	UsdPrice(ctx context.Context, tokenKey string) (decimal.Decimal, error)
	EthUsdPrice(ctx context.Context) (decimal.Decimal, error)
	GasPriceWei(ctx context.Context) (*big.Int, error)
	Reserves(ctx context.Context, venueID string, tokenA, tokenB common.Address) (*big.Int, *big.Int, error)
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Evaluator simulates a candidate path hop by hop and prices the outcome.
type Evaluator struct {
	registry *venue.Registry
	quotes   QuoteSource
	logger   *zap.Logger
}

// NewEvaluator creates a path evaluator.
func NewEvaluator(registry *venue.Registry, quotes QuoteSource, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		registry: registry,
		quotes:   quotes,
		logger:   logger,
	}
}

// Evaluate simulates the sequential swaps of path starting from
// inputAmountRaw and returns the profitability verdict.
//
// Intermediate amounts stay integers in raw base units; each hop applies
// floor(amount * (1 - fee)) to mirror on-chain truncation. Currency
// arithmetic runs in decimal precision so rounding error does not compound
// across hops. Any missing quote fails the whole evaluation closed: the
// result carries Profitable=false and an error tag, never a zero-price
// fallback that could read as a real opportunity.
func (e *Evaluator) Evaluate(ctx context.Context, token types.TokenRef, inputAmountRaw *big.Int, path types.PathCandidate) (*types.ProfitabilityResult, error) {
	if len(path) < 2 || len(path)%2 != 0 {
		err := fmt.Errorf("%w: path needs an even hop count of at least 2, got %d", types.ErrConfigInvalid, len(path))
		return failedResult(path, inputAmountRaw, err), err
	}
	if inputAmountRaw == nil || inputAmountRaw.Sign() <= 0 {
		err := fmt.Errorf("%w: input amount must be positive", types.ErrConfigInvalid)
		return failedResult(path, inputAmountRaw, err), err
	}

	gasPriceWei, err := e.quotes.GasPriceWei(ctx)
	if err != nil {
		return failedResult(path, inputAmountRaw, err), err
	}
	ethPriceUsd, err := e.quotes.EthUsdPrice(ctx)
	if err != nil {
		return failedResult(path, inputAmountRaw, err), err
	}
	tokenPriceUsd, err := e.quotes.UsdPrice(ctx, token.PriceKey)
	if err != nil {
		return failedResult(path, inputAmountRaw, err), err
	}

	current := new(big.Int).Set(inputAmountRaw)
	totalFeesToken := decimal.Zero
	var gasUnits uint64

	for _, venueID := range path {
		v, err := e.registry.Get(venueID)
		if err != nil {
			return failedResult(path, inputAmountRaw, err), err
		}

		before := decimal.NewFromBigInt(current, 0)
		// floor(current * (1 - fee)) on raw units: fractional base units do
		// not exist on-chain.
		current = before.Mul(one.Sub(v.FeeRate)).Floor().BigInt()

		feeRaw := before.Mul(v.FeeRate)
		totalFeesToken = totalFeesToken.Add(feeRaw.Shift(-int32(token.Decimals)))
		gasUnits += gas.UnitsPerHop
	}

	gasCostEth := gas.CostEth(gasUnits, gasPriceWei)
	gasCostUsd := gasCostEth.Mul(ethPriceUsd)

	initialValueUsd := decimal.NewFromBigInt(inputAmountRaw, -int32(token.Decimals)).Mul(tokenPriceUsd)
	finalValueUsd := decimal.NewFromBigInt(current, -int32(token.Decimals)).Mul(tokenPriceUsd)

	grossProfitUsd := finalValueUsd.Sub(initialValueUsd)
	netProfitUsd := grossProfitUsd.Sub(gasCostUsd)

	roi := decimal.Zero
	if !initialValueUsd.IsZero() {
		roi = netProfitUsd.Div(initialValueUsd).Mul(hundred)
	}

	result := &types.ProfitabilityResult{
		Path:           path.Clone(),
		InputAmount:    new(big.Int).Set(inputAmountRaw),
		FinalAmount:    current,
		GrossProfitUsd: grossProfitUsd,
		GasCostEth:     gasCostEth,
		GasCostUsd:     gasCostUsd,
		TotalFeesToken: totalFeesToken,
		NetProfitUsd:   netProfitUsd,
		RoiPercent:     roi,
		Profitable:     netProfitUsd.IsPositive(),
	}

	e.logger.Debug("Profitability analysis",
		zap.String("token", token.Symbol),
		zap.Strings("path", path),
		zap.String("input", inputAmountRaw.String()),
		zap.String("final", current.String()),
		zap.String("gas_cost_eth", gasCostEth.String()),
		zap.String("net_profit_usd", netProfitUsd.String()),
		zap.String("roi_percent", roi.String()),
		zap.Bool("profitable", result.Profitable))

	return result, nil
}

// failedResult is the fail-closed verdict for an evaluation that could not
// be priced.
func failedResult(path types.PathCandidate, input *big.Int, err error) *types.ProfitabilityResult {
	var inputCopy *big.Int
	if input != nil {
		inputCopy = new(big.Int).Set(input)
	}
	return &types.ProfitabilityResult{
		Path:        path.Clone(),
		InputAmount: inputCopy,
		Profitable:  false,
		Err:         err,
	}
}
