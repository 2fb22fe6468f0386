// Package middleware composes cross-cutting concerns around route handlers.
//
// A Middleware wraps a web.Handler. Chain composes a list outer to inner, so
// the first entry sees the request first and the response last:
//
//	chain := middleware.Chain(
//		middleware.RequestID(),
//		middleware.Logging(middleware.LoggingOptions{Logger: log}),
//		middleware.RateLimit(middleware.RateLimitOptions{Limiter: limiter}),
//	)
//	h := chain(handler)
//
// Guards short-circuit by returning a response without calling the next
// link. Hooks adapts a before/after pair into a Middleware for callers that
// do not want to write the wrapping themselves.
package middleware
