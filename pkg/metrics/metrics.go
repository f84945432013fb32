package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	StatusSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_status_signals_total",
			Help: "Total number of session status signals observed, by classification (count)",
		},
		[]string{"class"},
	)

	StatusWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_status_writes_total",
			Help: "Total number of status record writes (count)",
		},
		[]string{"status"},
	)

	StatusLoggedIn = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_status_logged_in",
			Help: "Last persisted session state (1=logged in, 0=not logged in)",
		},
	)

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_messages_total",
			Help: "Total number of inbound messages by feed and outcome (count)",
		},
		[]string{"feed", "outcome"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_deliveries_total",
			Help: "Total number of downstream delivery attempts by result (count)",
		},
		[]string{"status"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_delivery_duration_ms",
			Help:    "Duration of downstream delivery calls in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	DeliveriesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_deliveries_in_flight",
			Help: "Number of detached delivery calls not yet completed (count)",
		},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_callbacks_total",
			Help: "Total number of callback events received from downstream (count)",
		},
		[]string{"event"},
	)

	PipelineQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_pipeline_queue_size",
			Help: "Number of events waiting in the dispatcher queue (count)",
		},
	)

	IngestEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_ingest_events_total",
			Help: "Total number of events received per ingest source (count)",
		},
		[]string{"source", "kind"},
	)

	FilteringRuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_filtering_rule_evaluations_total",
			Help: "Total number of filtering rule evaluations (count)",
		},
		[]string{"rule_name", "result"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"component", "strategy"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			StatusSignalsTotal,
			StatusWritesTotal,
			StatusLoggedIn,
			MessagesTotal,
			DeliveriesTotal,
			DeliveryDuration,
			DeliveriesInFlight,
			CallbacksTotal,
			PipelineQueueSize,
			IngestEventsTotal,
			FilteringRuleEvaluationsTotal,
			FallbackUsageTotal,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
		)
	})
}

func ObserveDelivery(duration time.Duration, status string) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	DeliveryDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncMessage(feed, outcome string) {
	MessagesTotal.WithLabelValues(feed, outcome).Inc()
}

func IncStatusSignal(class string) {
	StatusSignalsTotal.WithLabelValues(class).Inc()
}

func IncStatusWrite(status string) {
	StatusWritesTotal.WithLabelValues(status).Inc()
}

func SetLoggedIn(loggedIn bool) {
	if loggedIn {
		StatusLoggedIn.Set(1)
		return
	}
	StatusLoggedIn.Set(0)
}

func IncCallback(event string) {
	CallbacksTotal.WithLabelValues(event).Inc()
}

func IncIngestEvent(source, kind string) {
	IngestEventsTotal.WithLabelValues(source, kind).Inc()
}

func IncFilteringRuleEvaluation(ruleName, result string) {
	FilteringRuleEvaluationsTotal.WithLabelValues(ruleName, result).Inc()
}

func SetPipelineQueueSize(size int) {
	PipelineQueueSize.Set(float64(size))
}
