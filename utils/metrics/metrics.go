// Package metrics exposes the bot's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BotMetrics covers the discovery and execution pipeline.
type BotMetrics struct {
	OpportunitiesFound prometheus.Counter
	PathsEvaluated     prometheus.Counter
	CandidatesSkipped  prometheus.Counter
	TradesExecuted     prometheus.Counter
	TradesFailed       prometheus.Counter
	GateSkips          *prometheus.CounterVec
	ProfitUsd          prometheus.Gauge
	GasPrice           prometheus.Histogram
	SearchDuration     prometheus.Histogram
	OracleRequests     prometheus.Counter
	OracleCacheHits    prometheus.Counter
}

// NewBotMetrics registers the bot metrics under the given namespace.
func NewBotMetrics(namespace string) *BotMetrics {
	return &BotMetrics{
		OpportunitiesFound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_found_total",
			Help:      "Total number of profitable paths found",
		}),
		PathsEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paths_evaluated_total",
			Help:      "Total number of candidate paths evaluated",
		}),
		CandidatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_skipped_total",
			Help:      "Total number of candidates skipped due to unavailable quotes",
		}),
		TradesExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Total number of fully executed arbitrage paths",
		}),
		TradesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_failed_total",
			Help:      "Total number of failed execution attempts, including partial",
		}),
		GateSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_skips_total",
			Help:      "Execution gate precondition skips by reason",
		}, []string{"reason"}),
		ProfitUsd: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profit_usd_total",
			Help:      "Cumulative realized profit in USD",
		}),
		GasPrice: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gas_price_wei",
			Help:      "Observed gas price distribution",
			Buckets:   prometheus.ExponentialBuckets(1e9, 2, 15), // Start at 1 gwei
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Time spent per path search",
			Buckets:   prometheus.DefBuckets,
		}),
		OracleRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_requests_total",
			Help:      "Outbound price oracle requests",
		}),
		OracleCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_cache_hits_total",
			Help:      "Price lookups served from the cache",
		}),
	}
}
