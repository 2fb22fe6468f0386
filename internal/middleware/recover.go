package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/angeloszaimis/routekit/internal/web"
)

// Recover turns a panic in an inner link into an internal error.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next web.Handler) web.Handler {
		return web.HandlerFunc(func(req *web.Request) (resp *web.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Handler panicked",
						slog.String("method", req.Method),
						slog.String("path", req.Path),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())))
					resp, err = nil, fmt.Errorf("panic: %v", r)
				}
			}()
			return next.Handle(req)
		})
	}
}
