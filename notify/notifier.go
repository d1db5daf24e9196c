// Package notify delivers operational notifications. Callers treat every
// method as fire-and-forget: a delivery failure is logged and never feeds
// back into trading control flow.
package notify

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
)

// OpportunityEvent describes a profitable path found by the search.
type OpportunityEvent struct {
	TokenSymbol  string
	Path         []string
	InputAmount  *big.Int
	FinalAmount  *big.Int
	NetProfitUsd decimal.Decimal
	GasCostEth   decimal.Decimal
	GasCostUsd   decimal.Decimal
	RoiPercent   decimal.Decimal
	EthPriceUsd  decimal.Decimal
	GasPriceGwei decimal.Decimal
	BlockNumber  uint64
}

// ExecutionEvent describes the terminal state of one execution attempt.
type ExecutionEvent struct {
	TokenSymbol   string
	Success       bool
	Partial       bool
	HopsCompleted int
	ProfitUsd     decimal.Decimal
	RoiPercent    decimal.Decimal
	Detail        string
}

// StatusEvent is the periodic health report.
type StatusEvent struct {
	EthPriceUsd        decimal.Decimal
	GasPriceGwei       decimal.Decimal
	BlockNumber        uint64
	OpportunitiesFound uint64
	SuccessfulTrades   uint64
	FailedTrades       uint64
	TotalProfitEth     decimal.Decimal
	TotalProfitUsd     decimal.Decimal
	RuntimeHours       decimal.Decimal
}

// Notifier is the notification collaborator consumed by the core.
type Notifier interface {
	NotifyOpportunity(ctx context.Context, e OpportunityEvent) error
	NotifyExecutionResult(ctx context.Context, e ExecutionEvent) error
	NotifyStatus(ctx context.Context, e StatusEvent) error
}

// Noop discards all notifications. Used when no channel is configured.
type Noop struct{}

func (Noop) NotifyOpportunity(context.Context, OpportunityEvent) error   { return nil }
func (Noop) NotifyExecutionResult(context.Context, ExecutionEvent) error { return nil }
func (Noop) NotifyStatus(context.Context, StatusEvent) error             { return nil }
