// Package observability defines the Prometheus metrics exported by the
// ledger. Metrics are package-level promauto vars registered at init and
// served by the API's /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Consensus Metrics ──────────────────────────────────────────────────────

// ReportsSubmitted counts reports accepted into the pending state.
var ReportsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vouch",
	Subsystem: "consensus",
	Name:      "reports_submitted_total",
	Help:      "Total trust reports accepted into the pending state.",
})

// ReportsResolved counts terminal transitions by outcome.
var ReportsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vouch",
	Subsystem: "consensus",
	Name:      "reports_resolved_total",
	Help:      "Total reports reaching a terminal state, by outcome.",
}, []string{"outcome"})

// OpenReports tracks reports currently accepting stakes.
var OpenReports = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vouch",
	Subsystem: "consensus",
	Name:      "open_reports",
	Help:      "Number of reports currently accepting stakes.",
})

// StakesPlaced counts accepted stakes across all reports.
var StakesPlaced = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vouch",
	Subsystem: "consensus",
	Name:      "stakes_placed_total",
	Help:      "Total stakes accepted across all reports.",
})

// ─── Economy Metrics ────────────────────────────────────────────────────────

// PointsSlashed counts trust points permanently forfeited.
var PointsSlashed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vouch",
	Subsystem: "economy",
	Name:      "points_slashed_total",
	Help:      "Total trust points permanently removed by slashing.",
})

// PointsRewarded counts trust points minted as consensus bonuses.
var PointsRewarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vouch",
	Subsystem: "economy",
	Name:      "points_rewarded_total",
	Help:      "Total trust points paid out as consensus bonuses.",
})

// PointsDecayed counts balances reduced per decay run.
var PointsDecayed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vouch",
	Subsystem: "economy",
	Name:      "balances_decayed_total",
	Help:      "Total balances reduced by the dormancy decay processor.",
})

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// BlockHeight tracks the index of the chain tip.
var BlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vouch",
	Subsystem: "ledger",
	Name:      "block_height",
	Help:      "Index of the current chain tip.",
})

// ChainVerifications counts integrity checks by result.
var ChainVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vouch",
	Subsystem: "ledger",
	Name:      "verifications_total",
	Help:      "Total chain integrity checks, by result.",
}, []string{"result"})
