package strategy

import (
	"fmt"

	"github.com/angeloszaimis/routekit/internal/upstream"
)

const (
	RoundRobin         = "round-robin"
	Weighted           = "weighted"
	Random             = "random"
	WeightedRoundRobin = "weighted-round-robin"
	LeastConn          = "least-conn"
	LeastResponse      = "least-response"
	ConsistentHash     = "consistent-hash"
)

// Names lists every strategy New understands.
var Names = []string{RoundRobin, Weighted, Random, WeightedRoundRobin, LeastConn, LeastResponse, ConsistentHash}

// Strategy picks one of the given targets. Callers only pass healthy,
// non-empty slices; a nil result means the strategy could not choose.
type Strategy interface {
	Pick(targets []*upstream.Target) *upstream.Target
}

// KeyedStrategy is implemented by strategies that route on a request key,
// such as a client address.
type KeyedStrategy interface {
	Strategy
	PickKey(targets []*upstream.Target, key string) *upstream.Target
}

// New builds a strategy by name. virtualNodes only matters for consistent
// hashing.
func New(name string, virtualNodes int) (Strategy, error) {
	switch name {
	case RoundRobin:
		return NewRoundRobinStrategy(), nil
	case Weighted:
		return NewWeightedRandomStrategy(), nil
	case Random:
		return NewRandomStrategy(), nil
	case WeightedRoundRobin:
		return NewWeightedRoundRobinStrategy(), nil
	case LeastConn:
		return NewLeastConnStrategy(), nil
	case LeastResponse:
		return NewLeastResponseStrategy(), nil
	case ConsistentHash, "consistent_hash":
		return NewConsistentHashStrategy(virtualNodes), nil
	default:
		return nil, fmt.Errorf("unknown load balancing strategy %q", name)
	}
}
