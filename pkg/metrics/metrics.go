// Package metrics exposes call-lifecycle counters and gauges via
// github.com/prometheus/client_golang, scraped from the reference
// entrypoint's /metrics endpoint (§6.4).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CallsStarted counts calls that entered the active state, labeled by
	// transport ("sip" | "hosted").
	CallsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "callengine_calls_started_total",
		Help: "Total calls that began processing, by transport.",
	}, []string{"transport"})

	// CallsEnded counts calls that reached the ended state, labeled by the
	// orchestrator's end reason (§4.9, §8 invariant 3).
	CallsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "callengine_calls_ended_total",
		Help: "Total calls that ended, by reason.",
	}, []string{"reason"})

	// ActiveCalls is the current number of in-progress calls.
	ActiveCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "callengine_active_calls",
		Help: "Calls currently in progress.",
	})

	// CallDurationSeconds observes call duration at end.
	CallDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "callengine_call_duration_seconds",
		Help:    "Call duration from start to end.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// MustRegister registers all call-engine collectors against reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(CallsStarted, CallsEnded, ActiveCalls, CallDurationSeconds)
}
