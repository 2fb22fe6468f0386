package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "routekit"

type promMetrics struct {
	registerer prometheus.Registerer

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	upstreamResponses *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	upstreamHealthy   *prometheus.GaugeVec
	breakerState      *prometheus.GaugeVec
	cacheLookups      *prometheus.CounterVec
	policyDecisions   *prometheus.CounterVec
	dropped           prometheus.Counter
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	factory := promauto.With(reg)

	return &promMetrics{
		registerer: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests handled by the pipeline, by route and outcome.",
			},
			[]string{"route", "method", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time spent in the pipeline per request.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		upstreamResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_responses_total",
				Help:      "Responses received from upstream targets, by status class.",
			},
			[]string{"target", "class"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream round-trip time.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"target"},
		),
		upstreamHealthy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_healthy",
				Help:      "1 when the target is considered healthy.",
			},
			[]string{"target"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by route and result.",
			},
			[]string{"route", "status"},
		),
		policyDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_decisions_total",
				Help:      "Resilience policy decisions.",
			},
			[]string{"policy", "decision"},
		),
		dropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metric_events_dropped_total",
				Help:      "Events dropped because the collector buffer was full.",
			},
		),
	}
}

// RegisterGauge exposes a value sampled at scrape time, such as the number
// of cached entries.
func (c *Collector) RegisterGauge(name, help string, fn func() float64) error {
	return c.prometheus.registerer.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		fn,
	))
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func breakerGauge(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF-OPEN":
		return 2
	default:
		return 0
	}
}
