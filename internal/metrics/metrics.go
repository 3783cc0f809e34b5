// Package metrics exposes invocation counters served from the HTTP sidecar.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fnhost_invocations_total",
		Help: "Invocations dispatched, by function and outcome.",
	}, []string{"function", "outcome"})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fnhost_invocation_duration_seconds",
		Help:    "Wall time of one dispatch, including handler execution.",
		Buckets: prometheus.DefBuckets,
	}, []string{"function"})
)

// ObserveInvocation records one completed dispatch. outcome is "ok" or the
// dispatch error kind.
func ObserveInvocation(function, outcome string, d time.Duration) {
	invocationsTotal.WithLabelValues(function, outcome).Inc()
	invocationDuration.WithLabelValues(function).Observe(d.Seconds())
}
