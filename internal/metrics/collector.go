package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EventType string

const (
	EventRequestCompleted  EventType = "request_completed"
	EventBackendSelected   EventType = "backend_selected"
	EventResponseCompleted EventType = "response_completed"
	EventHealthChanged     EventType = "health_changed"
	EventBreakerChanged    EventType = "breaker_changed"
	EventCacheLookup       EventType = "cache_lookup"
	EventPolicyDecision    EventType = "policy_decision"
)

// MetricEvent is one observation. Which fields are meaningful depends on Type.
type MetricEvent struct {
	Type      EventType
	Timestamp time.Time

	// Pipeline side.
	Route   string
	Method  string
	Outcome string

	// Upstream side.
	Backend string
	Healthy bool
	State   string

	Duration   time.Duration
	StatusCode int

	CacheStatus string
	Policy      string
	Allowed     bool
}

// Emitter is the non-blocking sink components report events to.
type Emitter interface {
	Emit(event MetricEvent)
}

// Collector consumes events on a single goroutine and feeds both the JSON
// snapshot and the Prometheus vectors.
type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *promMetrics
	logger     *slog.Logger
}

// NewCollector registers its Prometheus vectors on reg. A nil reg uses a
// private registry, which keeps tests isolated.
func NewCollector(bufferSize int, logger *slog.Logger, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Collector{
		eventCh:    make(chan MetricEvent, bufferSize),
		metrics:    NewMetrics(),
		prometheus: newPromMetrics(reg),
		logger:     logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. Events are dropped when the buffer is
// full so the request path never waits on metrics.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.prometheus.dropped.Inc()
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestCompleted:
		c.metrics.RecordRequest(event.Route, event.Outcome)
		c.prometheus.requests.WithLabelValues(event.Route, event.Method, event.Outcome).Inc()
		c.prometheus.requestDuration.WithLabelValues(event.Route).Observe(event.Duration.Seconds())

	case EventBackendSelected:
		c.metrics.RecordBackendSelection(event.Backend)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Backend, event.Duration, event.StatusCode)
		c.prometheus.upstreamResponses.WithLabelValues(event.Backend, statusClass(event.StatusCode)).Inc()
		c.prometheus.upstreamDuration.WithLabelValues(event.Backend).Observe(event.Duration.Seconds())

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Backend, event.Healthy)
		c.prometheus.upstreamHealthy.WithLabelValues(event.Backend).Set(boolGauge(event.Healthy))

	case EventBreakerChanged:
		c.metrics.UpdateBreakerState(event.Backend, event.State)
		c.prometheus.breakerState.WithLabelValues(event.Backend).Set(breakerGauge(event.State))

	case EventCacheLookup:
		c.metrics.RecordCacheLookup(event.CacheStatus)
		c.prometheus.cacheLookups.WithLabelValues(event.Route, event.CacheStatus).Inc()

	case EventPolicyDecision:
		decision := "denied"
		if event.Allowed {
			decision = "allowed"
		}
		c.prometheus.policyDecisions.WithLabelValues(event.Policy, decision).Inc()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(algorithm string) Snapshot {
	return c.metrics.Snapshot(algorithm)
}
