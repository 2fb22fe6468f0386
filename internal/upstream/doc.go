// Package upstream models the servers requests are proxied to.
// It provides connection tracking, response time monitoring, passive health
// tracking, and the Forwarder handler that sends a request to a target chosen
// by the load balancer under the protection of that target's circuit breaker.
package upstream
