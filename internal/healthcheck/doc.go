// Package healthcheck actively probes upstream targets and reports the
// result to the load balancer. It complements the passive failure counting
// done by the forwarder.
package healthcheck
