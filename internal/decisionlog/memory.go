package decisionlog

import (
	"context"
	"sync"
)

// Snapshot is a point-in-time copy of the memory store.
type Snapshot struct {
	Total    Counters            `json:"total"`
	ByPolicy map[string]Counters `json:"by_policy"`
	ByRoute  map[string]Counters `json:"by_route"`
	ByKey    map[string]Counters `json:"by_key,omitempty"`
}

// MemoryStore keeps counters in process. Nothing expires, so per-key
// tracking should stay off for open-ended client populations.
type MemoryStore struct {
	mutex    sync.Mutex
	total    Counters
	byPolicy map[string]Counters
	byRoute  map[string]Counters
	byKey    map[string]Counters

	trackKeys bool
}

type MemoryOption func(*MemoryStore)

func WithTrackKeys(track bool) MemoryOption {
	return func(s *MemoryStore) { s.trackKeys = track }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		byPolicy: make(map[string]Counters),
		byRoute:  make(map[string]Counters),
		byKey:    make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Record(_ context.Context, ev Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.total.add(ev.Allowed)
	bump(s.byPolicy, ev.Policy, ev.Allowed)
	if route := routeOf(ev); route != "" {
		bump(s.byRoute, route, ev.Allowed)
	}
	if s.trackKeys && ev.Key != "" {
		bump(s.byKey, ev.Key, ev.Allowed)
	}
	return nil
}

func bump(m map[string]Counters, key string, allowed bool) {
	c := m[key]
	c.add(allowed)
	m[key] = c
}

func (s *MemoryStore) Total() Counters {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.total
}

func (s *MemoryStore) Snapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snap := Snapshot{
		Total:    s.total,
		ByPolicy: copyCounters(s.byPolicy),
		ByRoute:  copyCounters(s.byRoute),
	}
	if s.trackKeys {
		snap.ByKey = copyCounters(s.byKey)
	}
	return snap
}

func copyCounters(m map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
