package routekit

import (
	"context"
	"time"

	"github.com/angeloszaimis/routekit/internal/cache"
	"github.com/angeloszaimis/routekit/internal/circuitbreaker"
	"github.com/angeloszaimis/routekit/internal/decisionlog"
)

type TargetStats struct {
	URL               string        `json:"url"`
	Weight            int           `json:"weight"`
	Healthy           bool          `json:"healthy"`
	ActiveConnections int           `json:"active_connections"`
	EWMA              time.Duration `json:"ewma"`
}

// Stats is a point-in-time view of the policy state.
type Stats struct {
	Cache            cache.Stats           `json:"cache"`
	RateLimitKeys    int                   `json:"rate_limit_keys"`
	RouteBreakers    map[string]string     `json:"route_breakers"`
	TargetBreakers   map[string]string     `json:"target_breakers"`
	Targets          []TargetStats         `json:"targets"`
	Decisions        *decisionlog.Snapshot `json:"decisions,omitempty"`
	DecisionTotal    *decisionlog.Counters `json:"decision_total,omitempty"`
	DecisionsDropped uint64                `json:"decisions_dropped"`
}

// Stats gathers the current state of every policy. With the redis decision
// log only the cumulative totals are read back.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		Cache:          a.cache.Stats(),
		RateLimitKeys:  a.limiter.Len(),
		RouteBreakers:  breakerStates(a.breakers.Stats()),
		TargetBreakers: breakerStates(a.upstreamBreakers.Stats()),
		Targets:        make([]TargetStats, 0, len(a.targets)),
	}

	for _, t := range a.targets {
		s.Targets = append(s.Targets, TargetStats{
			URL:               t.ID(),
			Weight:            t.Weight(),
			Healthy:           t.IsHealthy(),
			ActiveConnections: t.ActiveConnections(),
			EWMA:              t.EWMATime(),
		})
	}

	store := a.decisions
	if writer, ok := store.(*decisionlog.Async); ok {
		s.DecisionsDropped = writer.Dropped()
		store = writer.Store()
	}

	switch store := store.(type) {
	case *decisionlog.MemoryStore:
		snap := store.Snapshot()
		s.Decisions = &snap
	case *decisionlog.RedisStore:
		total, err := store.Total(ctx)
		if err != nil {
			return s, err
		}
		s.DecisionTotal = &total
	}

	return s, nil
}

func breakerStates(m map[string]circuitbreaker.State) map[string]string {
	out := make(map[string]string, len(m))
	for id, st := range m {
		out[id] = st.String()
	}
	return out
}
