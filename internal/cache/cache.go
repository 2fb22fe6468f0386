package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/angeloszaimis/routekit/internal/web"
)

const (
	DefaultMaxEntries = 1024
	DefaultShards     = 16
)

// Status reports how GetOrCompute produced its response.
type Status string

const (
	StatusHit       Status = "hit"
	StatusMiss      Status = "miss"
	StatusCoalesced Status = "coalesced"
)

// ComputeFunc produces a response on a miss. The context it receives is
// detached from the caller's cancellation.
type ComputeFunc func(ctx context.Context) (*web.Response, error)

type Options struct {
	MaxEntries int
	Shards     int
	Now        func() time.Time
}

type entry struct {
	response  *web.Response
	createdAt time.Time
	expiresAt time.Time
}

type shard struct {
	mutex sync.Mutex
	lru   *simplelru.LRU[string, *entry]
	group singleflight.Group
}

// Engine is a sharded LRU response cache with request coalescing. At most one
// computation per key is in flight at any time.
//
// MaxEntries bounds the whole engine, not each shard. When a store pushes the
// total over the bound, the least recently used entry of the written shard is
// evicted; if that shard holds only the new entry, another shard gives one up.
type Engine struct {
	shards     []*shard
	now        func() time.Time
	maxEntries int64
	size       atomic.Int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	coalesced atomic.Uint64
	evictions atomic.Uint64
}

type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Coalesced uint64 `json:"coalesced"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}

func New(opts Options) (*Engine, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Shards <= 0 {
		opts.Shards = DefaultShards
	}
	if opts.Shards > opts.MaxEntries {
		opts.Shards = opts.MaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		shards:     make([]*shard, opts.Shards),
		now:        opts.Now,
		maxEntries: int64(opts.MaxEntries),
	}
	onRemove := func(string, *entry) { e.size.Add(-1) }
	for i := range e.shards {
		lru, err := simplelru.NewLRU[string, *entry](opts.MaxEntries, onRemove)
		if err != nil {
			return nil, fmt.Errorf("create cache shard: %w", err)
		}
		e.shards[i] = &shard{lru: lru}
	}

	return e, nil
}

func (e *Engine) shardFor(key string) *shard {
	return e.shards[xxhash.Sum64String(key)%uint64(len(e.shards))]
}

// GetOrCompute returns the cached response for key or runs compute to produce
// it. Concurrent callers for the same key share a single computation. A
// caller whose ctx ends stops waiting without cancelling the computation.
// Only responses marked Cacheable are stored, and only when ttl is positive.
func (e *Engine) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (*web.Response, Status, error) {
	s := e.shardFor(key)

	if resp, ok := e.lookup(s, key); ok {
		e.hits.Add(1)
		return resp, StatusHit, nil
	}

	// DoChan runs the flight on its own goroutine.
	var (
		led         atomic.Bool
		servedFresh atomic.Bool
	)
	flightCtx := context.WithoutCancel(ctx)

	ch := s.group.DoChan(key, func() (any, error) {
		led.Store(true)

		// A flight that finished between our lookup and DoChan may have
		// stored the entry already.
		if resp, ok := e.lookup(s, key); ok {
			servedFresh.Store(true)
			return resp, nil
		}

		resp, err := runCompute(flightCtx, compute)
		if err != nil {
			return nil, err
		}
		if resp != nil && resp.Cacheable && ttl > 0 {
			e.store(s, key, resp, ttl)
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		// The flight keeps running detached and still fills the cache.
		if led.Load() {
			e.misses.Add(1)
			return nil, StatusMiss, ctx.Err()
		}
		return nil, StatusCoalesced, ctx.Err()
	case res := <-ch:
		status := StatusCoalesced
		switch {
		case led.Load() && servedFresh.Load():
			status = StatusHit
			e.hits.Add(1)
		case led.Load():
			status = StatusMiss
			e.misses.Add(1)
		default:
			e.coalesced.Add(1)
		}

		if res.Err != nil {
			return nil, status, fmt.Errorf("%w: %w", web.ErrCacheComputeFailed, res.Err)
		}
		resp, _ := res.Val.(*web.Response)
		return resp, status, nil
	}
}

func runCompute(ctx context.Context, compute ComputeFunc) (resp *web.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compute panicked: %v", r)
		}
	}()
	return compute(ctx)
}

// Get returns a fresh cached response without computing anything.
func (e *Engine) Get(key string) (*web.Response, bool) {
	return e.lookup(e.shardFor(key), key)
}

func (e *Engine) lookup(s *shard, key string) (*web.Response, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ent, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !e.now().Before(ent.expiresAt) {
		s.lru.Remove(key)
		return nil, false
	}
	return ent.response, true
}

func (e *Engine) store(s *shard, key string, resp *web.Response, ttl time.Duration) {
	now := e.now()

	s.mutex.Lock()
	if !s.lru.Contains(key) {
		e.size.Add(1)
	}
	if evicted := s.lru.Add(key, &entry{response: resp, createdAt: now, expiresAt: now.Add(ttl)}); evicted {
		e.evictions.Add(1)
	}
	if e.size.Load() > e.maxEntries && s.lru.Len() > 1 {
		s.lru.RemoveOldest()
		e.evictions.Add(1)
	}
	s.mutex.Unlock()

	// Locks are never nested, so stores into different shards cannot
	// deadlock while trimming each other.
	for _, other := range e.shards {
		if e.size.Load() <= e.maxEntries {
			return
		}
		if other == s {
			continue
		}
		other.mutex.Lock()
		if _, _, ok := other.lru.RemoveOldest(); ok {
			e.evictions.Add(1)
		}
		other.mutex.Unlock()
	}
}

// Delete drops key from the cache and reports whether it was present.
func (e *Engine) Delete(key string) bool {
	s := e.shardFor(key)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lru.Remove(key)
}

// Sweep removes every expired entry and returns how many were dropped.
func (e *Engine) Sweep() int {
	now := e.now()
	removed := 0

	for _, s := range e.shards {
		s.mutex.Lock()
		for _, key := range s.lru.Keys() {
			ent, ok := s.lru.Peek(key)
			if ok && !now.Before(ent.expiresAt) {
				s.lru.Remove(key)
				removed++
			}
		}
		s.mutex.Unlock()
	}

	return removed
}

func (e *Engine) Purge() {
	for _, s := range e.shards {
		s.mutex.Lock()
		s.lru.Purge()
		s.mutex.Unlock()
	}
}

// Len counts stored entries, including expired ones not yet swept.
func (e *Engine) Len() int {
	return int(e.size.Load())
}

func (e *Engine) Stats() Stats {
	return Stats{
		Hits:      e.hits.Load(),
		Misses:    e.misses.Load(),
		Coalesced: e.coalesced.Load(),
		Evictions: e.evictions.Load(),
		Entries:   e.Len(),
	}
}

// IsComputeFailure reports whether err came from a failed computation rather
// than from the caller giving up.
func IsComputeFailure(err error) bool {
	return errors.Is(err, web.ErrCacheComputeFailed)
}
