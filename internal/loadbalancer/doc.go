// Package loadbalancer spreads requests over the healthy members of an
// upstream pool using a pluggable strategy, and tracks passive health from
// reported request outcomes.
package loadbalancer
