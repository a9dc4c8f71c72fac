package dialog

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	turnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowchat",
		Subsystem: "dialog",
		Name:      "turns_total",
		Help:      "Completed conversation turns by outcome.",
	}, []string{"outcome"})

	nluLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flowchat",
		Subsystem: "dialog",
		Name:      "nlu_latency_seconds",
		Help:      "Latency of NLU oracle calls.",
		Buckets:   prometheus.DefBuckets,
	})

	nluFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowchat",
		Subsystem: "dialog",
		Name:      "nlu_failures_total",
		Help:      "NLU oracle calls that failed or returned malformed output.",
	})

	loopGuardTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowchat",
		Subsystem: "dialog",
		Name:      "loop_guard_trips_total",
		Help:      "Turns cut off by the bounded-recursion guard.",
	})

	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowchat",
		Subsystem: "dialog",
		Name:      "cache_evictions_total",
		Help:      "Conversation states evicted from the in-memory working set.",
	})

	storeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowchat",
		Subsystem: "dialog",
		Name:      "store_failures_total",
		Help:      "Conversation snapshot appends that failed.",
	})
)

func init() {
	prometheus.MustRegister(turnsTotal, nluLatency, nluFailures, loopGuardTrips, cacheEvictions, storeFailures)
}
