package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contextforge", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contextforge", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	ItemTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contextforge", Name: "upload_item_transitions_total", Help: "Upload item status transitions by target status."},
		[]string{"status"},
	)
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contextforge", Name: "ingest_dispatch_total", Help: "Indexing backend dispatch outcomes (queued, rejected, unreachable)."},
		[]string{"outcome"},
	)
	RelayResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contextforge", Name: "query_relay_responses_total", Help: "Answer backend responses by status class."},
		[]string{"class"},
	)
	BatchesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "contextforge", Name: "upload_batches_in_flight", Help: "Upload batches currently being processed."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ItemTransitions)
	reg.MustRegister(DispatchTotal)
	reg.MustRegister(RelayResponses)
	reg.MustRegister(BatchesInFlight)
}
