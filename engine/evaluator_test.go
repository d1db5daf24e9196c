package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/apexarb/dexarb/types"
	"github.com/apexarb/dexarb/venue"
)

func testRegistry(t *testing.T) *venue.Registry {
	t.Helper()
	reg := venue.NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, reg.Add(venue.Venue{
		ID:       "uniswap",
		Name:     "Uniswap V2",
		FeeRate:  decimal.RequireFromString("0.003"),
		Verified: true,
	}))
	require.NoError(t, reg.Add(venue.Venue{
		ID:       "sushiswap",
		Name:     "SushiSwap",
		FeeRate:  decimal.RequireFromString("0.003"),
		Verified: true,
	}))
	require.NoError(t, reg.Add(venue.Venue{
		ID:       "shibaswap",
		Name:     "ShibaSwap",
		FeeRate:  decimal.RequireFromString("0.0025"),
		Verified: true,
	}))
	return reg
}

func healthyQuotes() *stubQuotes {
	return &stubQuotes{
		gasPriceWei: big.NewInt(20_000_000_000), // 20 gwei
		ethPrice:    decimal.NewFromInt(2000),
		prices: map[string]decimal.Decimal{
			"tether":   decimal.NewFromInt(1),
			"ethereum": decimal.NewFromInt(2000),
		},
	}
}

func TestEvaluateTwoHopFeeAndGasMath(t *testing.T) {
	reg := testRegistry(t)
	quotes := healthyQuotes()
	ev := NewEvaluator(reg, quotes, zaptest.NewLogger(t))

	// 1 USDT in raw units (6 decimals). Two 0.3% hops:
	// floor(1000000 * 0.997) = 997000, floor(997000 * 0.997) = 994009.
	result, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000),
		types.PathCandidate{"uniswap", "sushiswap"})
	require.NoError(t, err)

	assert.Equal(t, "994009", result.FinalAmount.String())
	// 600k gas units at 20 gwei = 0.012 ETH = $24 at $2000/ETH.
	assert.True(t, result.GasCostEth.Equal(decimal.RequireFromString("0.012")),
		"gas cost eth = %s", result.GasCostEth)
	assert.True(t, result.GasCostUsd.Equal(decimal.NewFromInt(24)),
		"gas cost usd = %s", result.GasCostUsd)
	// Gross is the fee drag alone: (994009 - 1000000) / 1e6 dollars.
	assert.True(t, result.GrossProfitUsd.Equal(decimal.RequireFromString("-0.005991")),
		"gross = %s", result.GrossProfitUsd)
	assert.True(t, result.NetProfitUsd.Equal(decimal.RequireFromString("-24.005991")),
		"net = %s", result.NetProfitUsd)
	assert.False(t, result.Profitable)
	assert.NoError(t, result.Err)
}

func TestEvaluateFloorAppliesPerHop(t *testing.T) {
	reg := testRegistry(t)
	ev := NewEvaluator(reg, healthyQuotes(), zaptest.NewLogger(t))

	// Small enough that truncation is visible at every hop:
	// floor(1001 * 0.997) = 997, floor(997 * 0.9975) = 994.
	result, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1001),
		types.PathCandidate{"uniswap", "shibaswap"})
	require.NoError(t, err)
	assert.Equal(t, "994", result.FinalAmount.String())
}

func TestEvaluateFailsClosedOnOracleError(t *testing.T) {
	reg := testRegistry(t)
	quotes := healthyQuotes()
	quotes.priceErr = types.ErrPriceUnavailable
	ev := NewEvaluator(reg, quotes, zaptest.NewLogger(t))

	result, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000),
		types.PathCandidate{"uniswap", "sushiswap"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPriceUnavailable)

	// The verdict is an explicit failure, never a zero-price estimate.
	require.NotNil(t, result)
	assert.False(t, result.Profitable)
	assert.Error(t, result.Err)
	assert.True(t, result.NetProfitUsd.IsZero())
}

func TestEvaluateFailsClosedOnGasError(t *testing.T) {
	reg := testRegistry(t)
	quotes := healthyQuotes()
	quotes.gasErr = types.ErrRPCUnavailable
	ev := NewEvaluator(reg, quotes, zaptest.NewLogger(t))

	result, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000),
		types.PathCandidate{"uniswap", "sushiswap"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRPCUnavailable)
	assert.False(t, result.Profitable)
}

func TestEvaluateRejectsShortPath(t *testing.T) {
	reg := testRegistry(t)
	ev := NewEvaluator(reg, healthyQuotes(), zaptest.NewLogger(t))

	_, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000),
		types.PathCandidate{"uniswap"})
	assert.ErrorIs(t, err, types.ErrConfigInvalid)

	_, err = ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000), nil)
	assert.ErrorIs(t, err, types.ErrConfigInvalid)
}

func TestEvaluateRejectsOddHopCount(t *testing.T) {
	reg := testRegistry(t)
	ev := NewEvaluator(reg, healthyQuotes(), zaptest.NewLogger(t))

	// Three hops end in the counter token, so the verdict cannot price the
	// final amount against the searched token.
	result, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000),
		types.PathCandidate{"uniswap", "sushiswap", "shibaswap"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfigInvalid)
	assert.False(t, result.Profitable)
}

func TestEvaluateRejectsNonPositiveInput(t *testing.T) {
	reg := testRegistry(t)
	ev := NewEvaluator(reg, healthyQuotes(), zaptest.NewLogger(t))

	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		_, err := ev.Evaluate(context.Background(), usdtToken(), amount,
			types.PathCandidate{"uniswap", "sushiswap"})
		assert.ErrorIs(t, err, types.ErrConfigInvalid)
	}
}

func TestEvaluateUnknownVenueFailsClosed(t *testing.T) {
	reg := testRegistry(t)
	ev := NewEvaluator(reg, healthyQuotes(), zaptest.NewLogger(t))

	result, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000),
		types.PathCandidate{"uniswap", "ghostswap"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrVenueNotFound)
	assert.False(t, result.Profitable)
}

func TestEvaluateZeroFeeZeroGasBreaksEven(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg := venue.NewRegistry(logger)
	require.NoError(t, reg.Add(venue.Venue{ID: "free-a", FeeRate: decimal.Zero, Verified: true}))
	require.NoError(t, reg.Add(venue.Venue{ID: "free-b", FeeRate: decimal.Zero, Verified: true}))

	quotes := healthyQuotes()
	quotes.gasPriceWei = big.NewInt(0)
	ev := NewEvaluator(reg, quotes, logger)

	result, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000),
		types.PathCandidate{"free-a", "free-b"})
	require.NoError(t, err)

	// Break-even is not profitable; the verdict requires strictly positive net.
	assert.True(t, result.NetProfitUsd.IsZero())
	assert.False(t, result.Profitable)
	assert.True(t, result.RoiPercent.IsZero())
}

func TestEvaluateFeeAccumulation(t *testing.T) {
	reg := testRegistry(t)
	ev := NewEvaluator(reg, healthyQuotes(), zaptest.NewLogger(t))

	result, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000),
		types.PathCandidate{"uniswap", "sushiswap"})
	require.NoError(t, err)

	// 3000 + 2991 raw units of fees, expressed in whole tokens.
	assert.True(t, result.TotalFeesToken.Equal(decimal.RequireFromString("0.005991")),
		"fees = %s", result.TotalFeesToken)
}

func TestEvaluateContextErrorPropagates(t *testing.T) {
	reg := testRegistry(t)
	quotes := healthyQuotes()
	quotes.gasErr = context.Canceled
	ev := NewEvaluator(reg, quotes, zaptest.NewLogger(t))

	_, err := ev.Evaluate(context.Background(), usdtToken(), big.NewInt(1_000_000),
		types.PathCandidate{"uniswap", "sushiswap"})
	assert.True(t, errors.Is(err, context.Canceled))
}
