// SPDX-License-Identifier: MIT
// Coordinator observability. Grounded on the teacher's
// src/server/service/metrics/metrics.go (promauto-registered vectors at
// package scope), narrowed from HTTP-server metrics to tick/election
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ha_coordinator_tick_duration_seconds",
			Help:    "Duration of each completed check step transaction.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	HAStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ha_coordinator_status",
			Help: "Current ha_status of this node (matches the numeric status codes).",
		},
	)

	DBStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ha_coordinator_db_status",
			Help: "Current database link status: 0=ok, 1=down, 2=fail.",
		},
	)

	Promotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ha_coordinator_promotions_total",
			Help: "Number of times this node has promoted itself to ACTIVE.",
		},
	)

	PeerDemotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ha_coordinator_peer_demotions_total",
			Help: "Number of peer nodes this node has marked UNAVAILABLE.",
		},
	)

	RegistrationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ha_coordinator_registration_failures_total",
			Help: "Number of failed registration attempts (policy violations or DB errors).",
		},
	)
)
