package sequencer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	nextIndexGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sequencer_next_index",
			Help: "The leaf index that will be assigned to the next insertion.",
		},
	)
	pendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sequencer_pending_insertions",
			Help: "Number of insertions applied locally but not yet confirmed by the ledger.",
		},
	)
	divergedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sequencer_diverged",
			Help: "Set to 1 while local state is known to have diverged from the ledger.",
		},
	)
	submitOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_submissions",
			Help: "Incremented for each ledger submission attempt, labeled by outcome.",
		},
		[]string{"outcome"},
	)
	submitDur = prometheus.NewSummary(
		prometheus.SummaryOpts{
			Name: "ledger_submit_duration_seconds",
			Help: "Summary of how long it takes for an insertion to be confirmed by the ledger.",
		},
	)
	reconcileOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_operations",
			Help: "Incremented for each reconciliation, labeled by result.",
		},
		[]string{"result"},
	)
)

// Collectors returns the sequencer's metrics, for registration by the
// process that hosts it.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		nextIndexGauge,
		pendingGauge,
		divergedGauge,
		submitOps,
		submitDur,
		reconcileOps,
	}
}
