package upstream

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

const (
	ewmaAlpha       = 0.2
	DefaultMaxFails = 3
)

// Target is an upstream server with health status, connection tracking,
// and response time monitoring.
type Target struct {
	url    *url.URL
	weight int

	mutex             sync.Mutex
	isHealthy         bool
	consecutiveFails  int
	maxFails          int
	activeConnections int
	ewmaResponseTime  time.Duration
	hasEWMA           bool
}

// New creates a healthy target. Weights below 1 are raised to 1.
func New(u *url.URL, weight int) *Target {
	if weight < 1 {
		weight = 1
	}
	return &Target{
		url:       u,
		weight:    weight,
		isHealthy: true,
		maxFails:  DefaultMaxFails,
	}
}

// Parse builds a target from a raw URL.
func Parse(rawURL string, weight int) (*Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("target url %q must be absolute http(s)", rawURL)
	}
	return New(u, weight), nil
}

// SetMaxFails sets how many consecutive failed requests mark the target
// unhealthy.
func (t *Target) SetMaxFails(n int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if n < 1 {
		n = 1
	}
	t.maxFails = n
}

// ID identifies the target in logs, metrics and breaker registries.
func (t *Target) ID() string {
	return t.url.String()
}

func (t *Target) URL() *url.URL {
	return t.url
}

func (t *Target) Weight() int {
	return t.weight
}

func (t *Target) IncrementConn() {
	t.mutex.Lock()
	t.activeConnections++
	t.mutex.Unlock()
}

// DecrementConn never takes the count below zero.
func (t *Target) DecrementConn() {
	t.mutex.Lock()
	if t.activeConnections > 0 {
		t.activeConnections--
	}
	t.mutex.Unlock()
}

func (t *Target) ActiveConnections() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.activeConnections
}

func (t *Target) IsHealthy() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.isHealthy
}

// SetHealthy updates the health status and clears the failure streak.
// Returns true if the status changed.
func (t *Target) SetHealthy(healthy bool) (changed bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.consecutiveFails = 0
	if t.isHealthy == healthy {
		return false
	}
	t.isHealthy = healthy
	return true
}

// RecordOutcome feeds the passive health check. A success restores health;
// maxFails consecutive failures remove it. Returns true if the status changed.
func (t *Target) RecordOutcome(success bool) (changed bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if success {
		t.consecutiveFails = 0
		if !t.isHealthy {
			t.isHealthy = true
			return true
		}
		return false
	}

	t.consecutiveFails++
	if t.isHealthy && t.consecutiveFails >= t.maxFails {
		t.isHealthy = false
		return true
	}
	return false
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest request duration.
func (t *Target) RecordResponse(duration time.Duration) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.hasEWMA {
		t.ewmaResponseTime = duration
		t.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	t.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(t.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns 0 until a response has been recorded.
func (t *Target) EWMATime() time.Duration {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.hasEWMA {
		return 0
	}
	return t.ewmaResponseTime
}
