package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProfileLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "opsdash_profile_loads_total", Help: "Profile loads by outcome"},
		[]string{"outcome"},
	)
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "opsdash_mutations_total", Help: "Profile mutations by operation and outcome"},
		[]string{"op", "outcome"},
	)
	Rollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "opsdash_rollbacks_total", Help: "Optimistic updates reverted after a failed write"},
		[]string{"op"},
	)
	Compensations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "opsdash_saga_compensations_total", Help: "Custom skills deleted after a failed attach"},
	)
	IndexedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "opsdash_search_indexed_total", Help: "Outbox events indexed into search"},
	)
	FailedIndexEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "opsdash_search_failed_total", Help: "Outbox events that failed to index"},
	)
	DeadLetteredEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "opsdash_search_dead_lettered_total", Help: "Outbox events that used up their index attempts"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "opsdash_http_requests_total", Help: "HTTP requests by route and status class"},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsdash_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Later calls are
// no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ProfileLoads, Mutations, Rollbacks, Compensations,
			IndexedEvents, FailedIndexEvents, DeadLetteredEvents,
			HTTPRequests, HTTPDuration,
		)
	})
}

// Outcome turns an error into the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
