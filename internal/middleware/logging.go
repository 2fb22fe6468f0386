package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/routekit/internal/web"
)

const maskedValue = "***"

// DefaultSensitiveHeaders are masked when headers are logged.
var DefaultSensitiveHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
	"Set-Cookie",
	"X-Api-Key",
}

type LoggingOptions struct {
	Logger *slog.Logger
	// Headers adds the request headers to every log line.
	Headers          bool
	SensitiveHeaders []string
}

// Logging writes one line per finished request. Handler failures log at
// error level, policy denials and client errors at warn.
func Logging(opts LoggingOptions) Middleware {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sensitive := opts.SensitiveHeaders
	if sensitive == nil {
		sensitive = DefaultSensitiveHeaders
	}
	masked := make(map[string]struct{}, len(sensitive))
	for _, h := range sensitive {
		masked[http.CanonicalHeaderKey(strings.TrimSpace(h))] = struct{}{}
	}

	return func(next web.Handler) web.Handler {
		return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			start := time.Now()
			resp, err := next.Handle(req)
			duration := time.Since(start)

			final := resp
			if err != nil {
				final = web.ErrorResponse(err)
			}
			outcome := web.Classify(final)

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.Int("status", statusOf(final)),
				slog.String("outcome", string(outcome)),
				slog.Duration("duration", duration),
			}
			if route := req.GetString(web.ExtRouteID); route != "" {
				attrs = append(attrs, slog.String("route", route))
			}
			if id := req.GetString(web.ExtRequestID); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if cause := causeOf(final, err); cause != nil {
				attrs = append(attrs, slog.String("err", cause.Error()))
			}
			if opts.Headers {
				attrs = append(attrs, headerGroup(req.Header, masked))
			}

			logger.LogAttrs(context.Background(), levelFor(outcome), "Request completed", attrs...)
			return resp, err
		})
	}
}

func levelFor(outcome web.Outcome) slog.Level {
	switch outcome {
	case web.OutcomeHandlerError:
		return slog.LevelError
	case web.OutcomeShortCircuit, web.OutcomeClientError:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func statusOf(resp *web.Response) int {
	if resp == nil || resp.Status == 0 {
		return http.StatusOK
	}
	return resp.Status
}

func causeOf(resp *web.Response, err error) error {
	if err != nil {
		return err
	}
	if resp != nil {
		return resp.Cause
	}
	return nil
}

func headerGroup(h http.Header, masked map[string]struct{}) slog.Attr {
	attrs := make([]any, 0, len(h))
	for name, values := range h {
		value := strings.Join(values, ", ")
		if _, ok := masked[name]; ok {
			value = maskedValue
		}
		attrs = append(attrs, slog.String(name, value))
	}
	return slog.Group("headers", attrs...)
}
