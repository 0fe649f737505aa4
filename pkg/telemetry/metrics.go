// Package telemetry exposes the arbiter's Prometheus metrics, adapted from
// the teacher's pod-level demand/allocation gauges to round-level and
// agent-level arbitration metrics: per-resource allocation and shadow
// price, per-agent utility and balance, and system-wide welfare/Gini.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAllocation = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "arbiter",
			Name:      "allocation",
			Help:      "Units allocated to an agent for a resource kind this round",
		},
		[]string{"agent", "resource"},
	)

	metricIdealRequest = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "arbiter",
			Name:      "ideal_request",
			Help:      "Agent's ideal request for a resource kind this round",
		},
		[]string{"agent", "resource"},
	)

	metricUtility = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "arbiter",
			Name:      "utility",
			Help:      "Agent's weighted utility at the current allocation",
		},
		[]string{"agent"},
	)

	metricBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "arbiter",
			Name:      "currency_balance",
			Help:      "Agent's remaining currency balance after this round's burn",
		},
		[]string{"agent"},
	)

	metricShadowPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "arbiter",
			Name:      "shadow_price",
			Help:      "Lagrange multiplier (shadow price) for a resource kind",
		},
		[]string{"resource"},
	)

	metricWelfare = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "arbiter",
			Name:      "welfare",
			Help:      "Σ wᵢ·ln(aᵢ) across all agents this round",
		},
	)

	metricGini = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "arbiter",
			Name:      "gini",
			Help:      "Gini coefficient of the round's allocation vector",
		},
	)

	metricRound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "arbiter",
			Name:      "round",
			Help:      "Index of the most recently completed round",
		},
	)

	metricParetoOptimal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "arbiter",
			Name:      "pareto_optimal",
			Help:      "1 if the most recent round verified as Pareto optimal, 0 otherwise",
		},
	)
)

// RecordAgentAllocation records an agent's allocation and ideal request for
// a resource kind.
func RecordAgentAllocation(agent, resourceKind string, allocation, ideal int64) {
	metricAllocation.WithLabelValues(agent, resourceKind).Set(float64(allocation))
	metricIdealRequest.WithLabelValues(agent, resourceKind).Set(float64(ideal))
}

// RecordAgentUtility records an agent's utility and currency balance.
func RecordAgentUtility(agent string, utility float64, balance float64) {
	metricUtility.WithLabelValues(agent).Set(utility)
	metricBalance.WithLabelValues(agent).Set(balance)
}

// RecordShadowPrice records the current shadow price for a resource kind.
func RecordShadowPrice(resourceKind string, price float64) {
	metricShadowPrice.WithLabelValues(resourceKind).Set(price)
}

// RecordRoundSummary records the round-level welfare, Gini, round index,
// and Pareto-optimality verdict.
func RecordRoundSummary(round int, welfare, gini float64, paretoOptimal bool) {
	metricRound.Set(float64(round))
	metricWelfare.Set(welfare)
	metricGini.Set(gini)
	if paretoOptimal {
		metricParetoOptimal.Set(1)
	} else {
		metricParetoOptimal.Set(0)
	}
}

// ClearAgentMetrics removes metrics for an agent that has left the
// scenario.
func ClearAgentMetrics(agent string, resourceKinds []string) {
	for _, k := range resourceKinds {
		metricAllocation.DeleteLabelValues(agent, k)
		metricIdealRequest.DeleteLabelValues(agent, k)
	}
	metricUtility.DeleteLabelValues(agent)
	metricBalance.DeleteLabelValues(agent)
}
