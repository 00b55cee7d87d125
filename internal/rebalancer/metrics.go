package rebalancer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes, used as the "outcome" label.
const (
	OutcomeRebalanced = "rebalanced"
	OutcomeRankedOnly = "ranked_only"
	OutcomePaused     = "paused"
	OutcomeTooSoon    = "interval_not_met"
	OutcomeSkipped    = "skipped"
	OutcomeFailed     = "failed"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rebalancer",
		Name:      "cycles_total",
		Help:      "Rebalancing cycles by outcome.",
	}, []string{"outcome"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rebalancer",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of a rebalancing cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	capitalMovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rebalancer",
		Name:      "capital_moved_lamports_total",
		Help:      "Capital extracted from underperformers and redistributed.",
	})

	feesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rebalancer",
		Name:      "fees_lamports_total",
		Help:      "Fees routed to treasuries by kind.",
	}, []string{"kind"})

	strategiesRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rebalancer",
		Name:      "strategies_registered_total",
		Help:      "Strategies registered through the service.",
	})

	rankingThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rebalancer",
		Name:      "threshold_percentile",
		Help:      "Percentile threshold used by the last ranking.",
	})

	underperformerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rebalancer",
		Name:      "underperformers",
		Help:      "Underperforming strategies found by the last ranking.",
	})

	activeStrategyCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rebalancer",
		Name:      "active_strategies",
		Help:      "Active strategies seen by the last ranking.",
	})
)
