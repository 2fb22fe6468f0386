package middleware

import (
	"fmt"
	"log/slog"

	"github.com/angeloszaimis/routekit/internal/circuitbreaker"
	"github.com/angeloszaimis/routekit/internal/decisionlog"
	"github.com/angeloszaimis/routekit/internal/metrics"
	"github.com/angeloszaimis/routekit/internal/web"
)

const PolicyCircuitBreaker = "circuit_breaker"

type CircuitBreakerOptions struct {
	Breakers  *circuitbreaker.Registry
	Decisions decisionlog.Store
	Metrics   metrics.Emitter
	Logger    *slog.Logger
}

// CircuitBreaker guards each route with its own breaker and answers 503
// while it is open. Only handler errors count as failures; client errors
// and denials by inner guards do not.
func CircuitBreaker(opts CircuitBreakerOptions) Middleware {
	rec := newRecorder(PolicyCircuitBreaker, opts.Decisions, opts.Metrics, opts.Logger)

	return func(next web.Handler) web.Handler {
		return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			id := routeLabel(req)

			done, err := opts.Breakers.GetBreaker(id).Allow()
			rec.record(req, id, err == nil)
			if err != nil {
				return web.ErrorResponse(fmt.Errorf("route %s: %w", id, err)), nil
			}

			// A panic below still has to settle the call, or a half-open
			// breaker never frees its trial slot.
			settled := false
			defer func() {
				if !settled {
					done(false)
				}
			}()

			resp, err := next.Handle(req)

			final := resp
			if err != nil {
				final = web.ErrorResponse(err)
			}
			settled = true
			done(web.Classify(final) != web.OutcomeHandlerError)

			return resp, err
		})
	}
}
