package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenRef identifies a tradable token together with the metadata the
// evaluator needs to convert raw base units into decimal form.
type TokenRef struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
	// PriceKey is the oracle identifier for this token (e.g. "ethereum").
	PriceKey string
}

// TokenPosition is a token address plus a signed amount in raw base units.
// Values are never mutated after creation; the evaluator produces fresh
// positions instead of updating old ones.
type TokenPosition struct {
	Token    common.Address
	Raw      *big.Int
	Decimals uint8
}

// NewTokenPosition copies raw so the position stays immutable even if the
// caller keeps mutating its own big.Int.
func NewTokenPosition(token common.Address, raw *big.Int, decimals uint8) TokenPosition {
	return TokenPosition{
		Token:    token,
		Raw:      new(big.Int).Set(raw),
		Decimals: decimals,
	}
}

// Decimal converts the raw base-unit amount to the token's natural decimal
// representation.
func (p TokenPosition) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(p.Raw, -int32(p.Decimals))
}

// PriceQuote is a cached USD price for a single token key.
type PriceQuote struct {
	TokenKey  string
	UsdPrice  decimal.Decimal
	FetchedAt time.Time
}

// Fresh reports whether the quote is still usable under the given TTL.
func (q PriceQuote) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(q.FetchedAt) < ttl
}

// GasEstimate carries the gas price and per-hop unit cost used for one
// path evaluation. It is derived fresh per evaluation and never cached.
type GasEstimate struct {
	GasPriceWei *big.Int
	UnitsPerHop uint64
}

// PathCandidate is an ordered sequence of venue ids, length 2..maxHops.
type PathCandidate []string

// Clone returns an independent copy of the candidate.
func (p PathCandidate) Clone() PathCandidate {
	out := make(PathCandidate, len(p))
	copy(out, p)
	return out
}

// ProfitabilityResult is the evaluator's verdict for one candidate path.
// Profitable is always derived as NetProfitUsd > 0; no other field may
// disagree with that.
type ProfitabilityResult struct {
	Path           PathCandidate
	InputAmount    *big.Int
	FinalAmount    *big.Int
	GrossProfitUsd decimal.Decimal
	GasCostEth     decimal.Decimal
	GasCostUsd     decimal.Decimal
	TotalFeesToken decimal.Decimal
	NetProfitUsd   decimal.Decimal
	RoiPercent     decimal.Decimal
	Profitable     bool
	// Err tags a failed-closed evaluation. A result with Err set is never
	// profitable.
	Err error
}

// ExecutionOutcome reports the terminal state of one execution attempt.
// Each hop settles independently on-chain, so a failed attempt may still
// have completed earlier hops; Partial surfaces that state explicitly.
type ExecutionOutcome struct {
	Success       bool
	HopsCompleted int
	Partial       bool
	FinalAmount   *big.Int
	Detail        string
}
