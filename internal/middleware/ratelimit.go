package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/angeloszaimis/routekit/internal/decisionlog"
	"github.com/angeloszaimis/routekit/internal/metrics"
	"github.com/angeloszaimis/routekit/internal/ratelimit"
	"github.com/angeloszaimis/routekit/internal/web"
)

const PolicyRateLimit = "rate_limit"

type RateLimitOptions struct {
	Limiter *ratelimit.Limiter
	// KeyFunc defaults to ratelimit.ClientKey("", false).
	KeyFunc ratelimit.KeyFunc
	// Headers adds X-RateLimit-Limit and X-RateLimit-Remaining to admitted
	// responses. Denials always carry them.
	Headers   bool
	Decisions decisionlog.Store
	Metrics   metrics.Emitter
	Logger    *slog.Logger
}

// RateLimit charges each request to its client's token bucket and answers
// 429 with Retry-After once the bucket is empty.
func RateLimit(opts RateLimitOptions) Middleware {
	if opts.KeyFunc == nil {
		opts.KeyFunc = ratelimit.ClientKey("", false)
	}
	rec := newRecorder(PolicyRateLimit, opts.Decisions, opts.Metrics, opts.Logger)

	return func(next web.Handler) web.Handler {
		return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			key := opts.KeyFunc(req)
			req.Set(web.ExtClientID, key)

			dec := opts.Limiter.Allow(key)
			rec.record(req, key, dec.Allowed)

			if !dec.Allowed {
				resp := web.ErrorResponse(fmt.Errorf("%w: client %s", web.ErrRateLimited, key))
				resp.Header.Set("Retry-After", strconv.Itoa(retryAfterSeconds(dec.RetryAfter)))
				setLimitHeaders(resp, dec)
				return resp, nil
			}

			resp, err := next.Handle(req)
			if err != nil || !opts.Headers || resp == nil {
				return resp, err
			}
			resp = resp.Clone()
			setLimitHeaders(resp, dec)
			return resp, nil
		})
	}
}

func setLimitHeaders(resp *web.Response, dec ratelimit.Decision) {
	resp.Header.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	resp.Header.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
}

// retryAfterSeconds rounds up so clients never retry too early.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
