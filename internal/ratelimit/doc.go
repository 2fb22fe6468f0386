// Package ratelimit provides per-client token buckets.
//
// Buckets are backed by golang.org/x/time/rate and live in a sharded map, so
// checks for different clients rarely contend. Time is read through an
// injectable clock, which keeps refill behaviour testable.
package ratelimit
