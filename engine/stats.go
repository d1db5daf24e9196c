package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RunningStats holds the process-lifetime trading counters. It is an
// explicit value passed into the gate and the monitoring loop, not ambient
// state, so the gate can be unit tested in isolation. Counters are never
// reset and live only in memory.
type RunningStats struct {
	mu sync.Mutex

	opportunitiesFound uint64
	successfulTrades   uint64
	failedTrades       uint64
	totalProfitEth     decimal.Decimal
	totalProfitUsd     decimal.Decimal
	startTime          time.Time
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	OpportunitiesFound uint64
	SuccessfulTrades   uint64
	FailedTrades       uint64
	TotalProfitEth     decimal.Decimal
	TotalProfitUsd     decimal.Decimal
	StartTime          time.Time
	Uptime             time.Duration
}

// NewRunningStats creates zeroed stats anchored at now.
func NewRunningStats() *RunningStats {
	return &RunningStats{startTime: time.Now()}
}

// RecordOpportunity counts one profitable path found by the search.
func (s *RunningStats) RecordOpportunity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunitiesFound++
}

// RecordSuccess counts one fully executed path and accumulates its profit.
func (s *RunningStats) RecordSuccess(profitEth, profitUsd decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successfulTrades++
	s.totalProfitEth = s.totalProfitEth.Add(profitEth)
	s.totalProfitUsd = s.totalProfitUsd.Add(profitUsd)
}

// RecordFailure counts one failed (possibly partial) execution attempt.
func (s *RunningStats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedTrades++
}

// Snapshot returns a consistent copy of all counters.
func (s *RunningStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		OpportunitiesFound: s.opportunitiesFound,
		SuccessfulTrades:   s.successfulTrades,
		FailedTrades:       s.failedTrades,
		TotalProfitEth:     s.totalProfitEth,
		TotalProfitUsd:     s.totalProfitUsd,
		StartTime:          s.startTime,
		Uptime:             time.Since(s.startTime),
	}
}
