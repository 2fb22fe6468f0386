package middleware

import (
	"time"

	"github.com/angeloszaimis/routekit/internal/metrics"
	"github.com/angeloszaimis/routekit/internal/web"
)

// Metrics emits one EventRequestCompleted per request.
func Metrics(emitter metrics.Emitter) Middleware {
	return func(next web.Handler) web.Handler {
		if emitter == nil {
			return next
		}
		return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			start := time.Now()
			resp, err := next.Handle(req)

			final := resp
			if err != nil {
				final = web.ErrorResponse(err)
			}

			emitter.Emit(metrics.MetricEvent{
				Type:       metrics.EventRequestCompleted,
				Timestamp:  start,
				Route:      routeLabel(req),
				Method:     req.Method,
				Outcome:    string(web.Classify(final)),
				Duration:   time.Since(start),
				StatusCode: statusOf(final),
			})
			return resp, err
		})
	}
}

// routeLabel prefers the matched route id, which has bounded cardinality.
func routeLabel(req *web.Request) string {
	if id := req.GetString(web.ExtRouteID); id != "" {
		return id
	}
	return req.Method + " " + req.Path
}
