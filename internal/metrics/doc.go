// Package metrics collects pipeline and upstream metrics.
//
// Components report MetricEvents through Emit, which never blocks: a full
// buffer drops the event and counts the drop. A single goroutine consumes the
// events and feeds two views:
//   - A JSON snapshot with per-route outcome counts, cache results, and
//     per-target selections, health, breaker state and latency percentiles
//   - Prometheus vectors registered on the Registerer given to NewCollector
//
// Example usage:
//
//	collector := metrics.NewCollector(1024, logger, prometheus.DefaultRegisterer)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Backend:    "http://localhost:8081",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot("round-robin")
//
// Remaining events are drained when the context passed to Start ends.
package metrics
