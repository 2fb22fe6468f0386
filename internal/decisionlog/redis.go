package decisionlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisPrefix = "routekit:decisions"
	DefaultRedisTTL    = 24 * time.Hour
)

// RedisStore writes counters as Redis hashes:
//
//	<prefix>:total                     allowed|denied
//	<prefix>:policy                    <policy>:allowed|denied
//	<prefix>:route                     <METHOD route>:allowed|denied
//	<prefix>:minute:<yyyymmddhhmm>     allowed|denied, expires after ttl
//	<prefix>:key:<client>              allowed|denied, expires after ttl
type RedisStore struct {
	rdb redis.UniversalClient

	prefix    string
	ttl       time.Duration
	trackKeys bool
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithTTL applies to the per-minute and per-key hashes. Totals never expire.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

func WithRedisTrackKeys(track bool) RedisOption {
	return func(s *RedisStore) { s.trackKeys = track }
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: DefaultRedisPrefix,
		ttl:    DefaultRedisTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	f := field(ev.Allowed)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", f, 1)

	if ev.Policy != "" {
		pipe.HIncrBy(ctx, s.prefix+":policy", ev.Policy+":"+f, 1)
	}
	if route := routeOf(ev); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+f, 1)
	}

	minuteKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, minuteKey, f, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, minuteKey, s.ttl)
	}

	if k := strings.TrimSpace(ev.Key); s.trackKeys && k != "" {
		keyKey := s.prefix + ":key:" + k
		pipe.HIncrBy(ctx, keyKey, f, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, keyKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Total reads the cumulative counters back.
func (s *RedisStore) Total(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read decision totals: %w", err)
	}

	var c Counters
	if _, err := fmt.Sscan(orZero(vals["allowed"]), &c.Allowed); err != nil {
		return Counters{}, fmt.Errorf("parse allowed count: %w", err)
	}
	if _, err := fmt.Sscan(orZero(vals["denied"]), &c.Denied); err != nil {
		return Counters{}, fmt.Errorf("parse denied count: %w", err)
	}
	return c, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
