package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultCapacity        = 5
	DefaultRefillPerSecond = 1.0
	DefaultShards          = 32
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until the next token is available. Zero when
	// the request was allowed.
	RetryAfter time.Duration
	// Remaining is the number of whole tokens left in the bucket.
	Remaining int
	Limit     int
}

type Options struct {
	Capacity        int
	RefillPerSecond float64
	Shards          int
	Now             func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type shard struct {
	mutex   sync.Mutex
	buckets map[string]*bucket
}

// Limiter keeps one token bucket per client key. Buckets refill continuously
// and are created full on first sight of a key.
type Limiter struct {
	shards   []*shard
	capacity int
	refill   rate.Limit
	now      func() time.Time
}

func New(opts Options) *Limiter {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.RefillPerSecond <= 0 {
		opts.RefillPerSecond = DefaultRefillPerSecond
	}
	if opts.Shards <= 0 {
		opts.Shards = DefaultShards
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Limiter{
		shards:   make([]*shard, opts.Shards),
		capacity: opts.Capacity,
		refill:   rate.Limit(opts.RefillPerSecond),
		now:      opts.Now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return l
}

func (l *Limiter) shardFor(key string) *shard {
	return l.shards[xxhash.Sum64String(key)%uint64(len(l.shards))]
}

// Allow consumes one token for key if one is available.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()
	s := l.shardFor(key)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.refill, l.capacity)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return Decision{
			Allowed:   true,
			Remaining: int(math.Floor(b.limiter.TokensAt(now))),
			Limit:     l.capacity,
		}
	}

	missing := 1 - b.limiter.TokensAt(now)
	wait := time.Duration(math.Ceil(missing / float64(l.refill) * float64(time.Second)))
	return Decision{
		Allowed:    false,
		RetryAfter: wait,
		Limit:      l.capacity,
	}
}

// Sweep drops buckets not touched for idleTTL and returns how many went.
// A dropped bucket would have refilled to capacity by then anyway, provided
// idleTTL is at least capacity/refill.
func (l *Limiter) Sweep(idleTTL time.Duration) int {
	cutoff := l.now().Add(-idleTTL)
	removed := 0

	for _, s := range l.shards {
		s.mutex.Lock()
		for key, b := range s.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mutex.Unlock()
	}

	return removed
}

// Len returns the number of tracked client keys.
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mutex.Lock()
		n += len(s.buckets)
		s.mutex.Unlock()
	}
	return n
}

func (l *Limiter) Capacity() int { return l.capacity }

func (l *Limiter) RefillPerSecond() float64 { return float64(l.refill) }
