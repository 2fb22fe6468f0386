package circuitbreaker

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const registryShards = 16

type registryShard struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// Registry hands out one breaker per target id, created on first use.
type Registry struct {
	settings Settings
	shards   [registryShards]*registryShard
}

func NewRegistry(settings Settings) *Registry {
	r := &Registry{settings: settings.withDefaults()}
	for i := range r.shards {
		r.shards[i] = &registryShard{breakers: make(map[string]*CircuitBreaker)}
	}
	return r
}

func (r *Registry) shardFor(id string) *registryShard {
	return r.shards[xxhash.Sum64String(id)%registryShards]
}

func (r *Registry) GetBreaker(id string) *CircuitBreaker {
	s := r.shardFor(id)

	s.mutex.RLock()
	cb, exists := s.breakers[id]
	s.mutex.RUnlock()

	if exists {
		return cb
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = s.breakers[id]; exists {
		return cb
	}

	cb = NewCircuitBreaker(id, r.settings)
	s.breakers[id] = cb
	return cb
}

func (r *Registry) Reset() {
	for _, s := range r.shards {
		s.mutex.Lock()
		s.breakers = make(map[string]*CircuitBreaker)
		s.mutex.Unlock()
	}
}

func (r *Registry) Stats() map[string]State {
	stats := make(map[string]State)
	for _, s := range r.shards {
		s.mutex.RLock()
		for id, cb := range s.breakers {
			stats[id] = cb.State()
		}
		s.mutex.RUnlock()
	}
	return stats
}
