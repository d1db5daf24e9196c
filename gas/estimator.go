// Package gas models the gas cost of multi-hop swap sequences.
package gas

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// UnitsPerHop is the fixed gas budget for one router swap, covering storage
// reads, token transfers and the swap itself.
const UnitsPerHop uint64 = 300_000

var weiPerEth = decimal.New(1, 18)

// UnitsForPath returns the total gas units for a path of numHops swaps.
func UnitsForPath(numHops int) uint64 {
	if numHops <= 0 {
		return 0
	}
	return UnitsPerHop * uint64(numHops)
}

// CostEth converts gas units at the given wei price into ETH.
func CostEth(units uint64, gasPriceWei *big.Int) decimal.Decimal {
	costWei := new(big.Int).Mul(
		new(big.Int).SetUint64(units),
		gasPriceWei,
	)
	return decimal.NewFromBigInt(costWei, 0).Div(weiPerEth)
}

// GweiToWei converts a gwei amount into wei.
func GweiToWei(gwei int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(gwei), big.NewInt(1_000_000_000))
}
