package loadbalancer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/angeloszaimis/routekit/internal/strategy"
	"github.com/angeloszaimis/routekit/internal/upstream"
	"github.com/angeloszaimis/routekit/internal/web"
)

// HealthListener is told whenever a target's health flag flips.
type HealthListener func(target *upstream.Target, healthy bool)

type LoadBalancer struct {
	strategy strategy.Strategy
	targets  []*upstream.Target
	logger   *slog.Logger

	mutex     sync.RWMutex
	listeners []HealthListener
}

func NewLoadBalancer(strat strategy.Strategy, targets []*upstream.Target, logger *slog.Logger) *LoadBalancer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LoadBalancer{
		strategy: strat,
		targets:  targets,
		logger:   logger,
	}
}

// OnHealthChange registers a listener for health transitions.
func (lb *LoadBalancer) OnHealthChange(l HealthListener) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()
	lb.listeners = append(lb.listeners, l)
}

// Select picks a healthy target and reserves a connection slot on it. The
// caller releases the slot with Release. key is only consulted by keyed
// strategies. Returns web.ErrNoAvailableUpstream when no target is healthy.
func (lb *LoadBalancer) Select(key string) (*upstream.Target, error) {
	healthy := lb.filterHealthyTargets()
	if len(healthy) == 0 {
		return nil, web.ErrNoAvailableUpstream
	}

	var chosen *upstream.Target
	if ks, ok := lb.strategy.(strategy.KeyedStrategy); ok {
		chosen = ks.PickKey(healthy, key)
	} else {
		chosen = lb.strategy.Pick(healthy)
	}

	if chosen == nil {
		return nil, fmt.Errorf("%w: strategy returned no target", web.ErrNoAvailableUpstream)
	}

	chosen.IncrementConn()
	return chosen, nil
}

func (lb *LoadBalancer) Release(t *upstream.Target) {
	t.DecrementConn()
}

// ReportOutcome feeds a request result into the target's passive health.
func (lb *LoadBalancer) ReportOutcome(t *upstream.Target, success bool) {
	if t.RecordOutcome(success) {
		lb.healthChanged(t, t.IsHealthy())
	}
}

// SetHealthy is used by the active health checker.
func (lb *LoadBalancer) SetHealthy(t *upstream.Target, healthy bool) {
	if t.SetHealthy(healthy) {
		lb.healthChanged(t, healthy)
	}
}

func (lb *LoadBalancer) healthChanged(t *upstream.Target, healthy bool) {
	if healthy {
		lb.logger.Info("Target is back up", slog.String("target", t.ID()))
	} else {
		lb.logger.Warn("Target is down", slog.String("target", t.ID()))
	}

	lb.mutex.RLock()
	listeners := lb.listeners
	lb.mutex.RUnlock()

	for _, l := range listeners {
		l(t, healthy)
	}
}

func (lb *LoadBalancer) filterHealthyTargets() []*upstream.Target {
	healthy := make([]*upstream.Target, 0, len(lb.targets))
	for _, t := range lb.targets {
		if t.IsHealthy() {
			healthy = append(healthy, t)
		}
	}
	return healthy
}

// Targets returns the full pool, healthy or not.
func (lb *LoadBalancer) Targets() []*upstream.Target {
	return append([]*upstream.Target(nil), lb.targets...)
}

func (lb *LoadBalancer) Strategy() strategy.Strategy {
	return lb.strategy
}
