// Package strategy defines the load balancing strategy interface and
// implements various algorithms:
//
//   - Round Robin: Sequential distribution across targets
//   - Weighted: Random selection proportional to target weights
//   - Random: Uniform random selection
//   - Weighted Round Robin: Smooth distribution proportional to weights
//   - Least Connections: Routes to the target with fewest in-flight requests
//   - Least Response Time: Routes on exponentially weighted moving average (EWMA) latency
//   - Consistent Hash: Keyed selection for client affinity
//
// Strategies only ever see the healthy targets the load balancer hands them.
package strategy
