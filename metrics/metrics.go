// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

// Package metrics exposes the coordinator's Prometheus counters and gauges,
// the ambient observability layer a production deployment of this kind
// always carries.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RoundTransitions counts successful status transitions, labeled by the
	// destination status (e.g. "signing_round1", "completed", "failed").
	RoundTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpc_coordinator",
		Name:      "round_transitions_total",
		Help:      "Count of transaction status transitions by destination status.",
	}, []string{"status"})

	// AggregationFailures counts Round 2/4 aggregation failures, labeled by round.
	AggregationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpc_coordinator",
		Name:      "aggregation_failures_total",
		Help:      "Count of AggregationFailure errors by round.",
	}, []string{"round"})

	// RepositoryConflicts counts compare-and-set losses, labeled by task.
	RepositoryConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpc_coordinator",
		Name:      "repository_conflicts_total",
		Help:      "Count of repository compare-and-set conflicts by task.",
	}, []string{"task"})

	// ConnectedGuardians is a gauge of live Session Registry entries.
	ConnectedGuardians = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpc_coordinator",
		Name:      "connected_guardians",
		Help:      "Number of guardian sessions currently attached to the registry.",
	})
)

// MustRegister registers every collector in this package against reg. Call
// once at startup; registering twice against the same registry panics,
// matching prometheus/client_golang's own convention.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(RoundTransitions, AggregationFailures, RepositoryConflicts, ConnectedGuardians)
}
