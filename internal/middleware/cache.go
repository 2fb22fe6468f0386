package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/angeloszaimis/routekit/internal/cache"
	"github.com/angeloszaimis/routekit/internal/metrics"
	"github.com/angeloszaimis/routekit/internal/web"
)

const CacheStatusHeader = "X-Cache"

type CacheOptions struct {
	Engine  *cache.Engine
	Keyer   cache.Keyer
	TTL     time.Duration
	Metrics metrics.Emitter
}

// Cache serves GET and HEAD from the cache engine. Misses run the inner
// links once per key no matter how many requests wait for it.
func Cache(opts CacheOptions) Middleware {
	return func(next web.Handler) web.Handler {
		return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next.Handle(req)
			}

			key := opts.Keyer.Key(req)
			resp, status, err := opts.Engine.GetOrCompute(req.Context(), key, opts.TTL,
				func(ctx context.Context) (*web.Response, error) {
					return next.Handle(req.WithContext(ctx))
				})

			if opts.Metrics != nil {
				opts.Metrics.Emit(metrics.MetricEvent{
					Type:        metrics.EventCacheLookup,
					Timestamp:   time.Now(),
					Route:       routeLabel(req),
					Method:      req.Method,
					CacheStatus: string(status),
				})
			}

			if err != nil {
				if !cache.IsComputeFailure(err) && errors.Is(err, req.Context().Err()) {
					return nil, fmt.Errorf("%w: gave up waiting for %s: %w", web.ErrTimeout, key, err)
				}
				return nil, err
			}
			if resp == nil {
				return nil, nil
			}
			return resp.WithHeader(CacheStatusHeader, cacheHeader(status)), nil
		})
	}
}

func cacheHeader(status cache.Status) string {
	switch status {
	case cache.StatusHit:
		return "HIT"
	case cache.StatusCoalesced:
		return "COALESCED"
	default:
		return "MISS"
	}
}
