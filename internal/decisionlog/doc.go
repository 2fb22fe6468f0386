// Package decisionlog records resilience policy decisions (rate limit
// admits and denials, breaker rejections) for later inspection.
//
// Recording is best effort. Callers log a failed Record and carry on with
// the request. Async puts a bounded queue in front of a slow backend.
package decisionlog
