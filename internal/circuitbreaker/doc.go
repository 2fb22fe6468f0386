// Package circuitbreaker implements the circuit breaker pattern for upstream targets.
//
// A circuit breaker prevents cascading failures by temporarily blocking requests
// to failing targets. It has three states:
//
//   - CLOSED: Normal operation, failures are counted in a sliding window
//   - OPEN: Target failing, requests blocked until the cooldown elapses
//   - HALF-OPEN: A bounded number of probes decide whether to close again
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.Settings{FailureThreshold: 3})
//	done, err := registry.GetBreaker("http://localhost:8081").Allow()
//	if err != nil {
//	    return err // web.ErrCircuitOpen
//	}
//	resp, err := send()
//	done(err == nil)
package circuitbreaker
