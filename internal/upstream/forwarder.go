package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/routekit/internal/circuitbreaker"
	"github.com/angeloszaimis/routekit/internal/metrics"
	"github.com/angeloszaimis/routekit/internal/web"
)

const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxResponseBytes = 10 << 20
	DefaultMaxAttempts      = 3
)

// Balancer is the part of the load balancer the forwarder needs.
type Balancer interface {
	Select(key string) (*Target, error)
	Release(t *Target)
	ReportOutcome(t *Target, success bool)
}

// Hop-by-hop headers are meaningful for a single connection only.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type ForwarderOptions struct {
	Balancer Balancer
	// Breakers is optional; without it every selected target is tried.
	Breakers *circuitbreaker.Registry
	Client   *http.Client
	Timeout  time.Duration
	// StripPrefix is removed from the request path before forwarding.
	StripPrefix      string
	MaxResponseBytes int64
	// KeyFunc feeds keyed strategies. Defaults to the remote host.
	KeyFunc func(req *web.Request) string
	// MaxAttempts bounds how many selections are made when picked targets
	// have an open breaker.
	MaxAttempts int
	Metrics metrics.Emitter
	Logger  *slog.Logger
}

// Forwarder is a handler that proxies the request to a target picked by the
// balancer and turns the upstream answer into a web.Response.
type Forwarder struct {
	opts ForwarderOptions
}

func NewForwarder(opts ForwarderOptions) *Forwarder {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = remoteHost
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	opts.StripPrefix = strings.TrimSuffix(opts.StripPrefix, "/")

	return &Forwarder{opts: opts}
}

func (f *Forwarder) Handle(req *web.Request) (*web.Response, error) {
	target, done, err := f.acquire(req)
	if err != nil {
		return nil, err
	}
	defer f.opts.Balancer.Release(target)

	settled := false
	defer func() {
		if !settled {
			done(false)
		}
	}()

	f.emit(metrics.MetricEvent{Type: metrics.EventBackendSelected, Backend: target.ID()})

	f.opts.Logger.Debug("Forwarding to target",
		slog.String("target", target.ID()),
		slog.String("method", req.Method),
		slog.String("path", req.Path))

	start := time.Now()
	resp, err := f.roundTrip(req, target)
	duration := time.Since(start)

	success := err == nil && resp.Status < http.StatusInternalServerError
	settled = true
	done(success)
	f.opts.Balancer.ReportOutcome(target, success)

	if err != nil {
		f.opts.Logger.Warn("Upstream request failed",
			slog.String("target", target.ID()),
			slog.Any("err", err))
		return nil, err
	}

	target.RecordResponse(duration)
	f.emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Backend:    target.ID(),
		Duration:   duration,
		StatusCode: resp.Status,
	})

	return resp, nil
}

// acquire selects a target whose breaker admits the call. A target with an
// open breaker is handed back and the balancer asked again, until a target
// repeats or MaxAttempts is used up.
func (f *Forwarder) acquire(req *web.Request) (*Target, func(bool), error) {
	key := f.opts.KeyFunc(req)
	tried := make(map[*Target]struct{}, f.opts.MaxAttempts)
	var lastErr error

	for range f.opts.MaxAttempts {
		target, err := f.opts.Balancer.Select(key)
		if err != nil {
			f.opts.Logger.Warn("No healthy targets available", slog.String("path", req.Path))
			return nil, nil, err
		}
		if f.opts.Breakers == nil {
			return target, func(bool) {}, nil
		}
		if _, seen := tried[target]; seen {
			f.opts.Balancer.Release(target)
			break
		}
		tried[target] = struct{}{}

		done, err := f.opts.Breakers.GetBreaker(target.ID()).Allow()
		if err == nil {
			return target, done, nil
		}
		f.opts.Balancer.Release(target)
		lastErr = fmt.Errorf("target %s: %w", target.ID(), err)

		f.opts.Logger.Debug("Skipping target with open breaker", slog.String("target", target.ID()))
	}

	return nil, nil, lastErr
}

func (f *Forwarder) roundTrip(req *web.Request, target *Target) (*web.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), f.opts.Timeout)
	defer cancel()

	out, err := f.outbound(ctx, req, target)
	if err != nil {
		return nil, err
	}

	res, err := f.opts.Client.Do(out)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", web.ErrTimeout, target.ID(), f.opts.Timeout)
		}
		return nil, fmt.Errorf("%w: %w", web.ErrUpstream, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, f.opts.MaxResponseBytes+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", web.ErrTimeout, target.ID(), f.opts.Timeout)
		}
		return nil, fmt.Errorf("%w: read body: %w", web.ErrUpstream, err)
	}
	if int64(len(body)) > f.opts.MaxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", web.ErrUpstream, f.opts.MaxResponseBytes)
	}

	resp := web.NewResponse(res.StatusCode, body)
	for k, vs := range res.Header {
		resp.Header[k] = append([]string(nil), vs...)
	}
	removeHopHeaders(resp.Header)
	resp.Header.Set("X-Backend-Server", target.ID())
	resp.Cacheable = cacheable(req.Method, res)

	return resp, nil
}

func (f *Forwarder) outbound(ctx context.Context, req *web.Request, target *Target) (*http.Request, error) {
	u := *target.URL()
	u.Path = joinPath(u.Path, f.stripped(req.Path))
	u.RawPath = ""
	u.RawQuery = req.Query.Encode()

	var body io.Reader = http.NoBody
	raw, err := req.Body()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", web.ErrExtraction, err)
	}
	if len(raw) > 0 {
		body = bytes.NewReader(raw)
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", web.ErrUpstream, err)
	}

	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	removeHopHeaders(out.Header)

	if host := remoteHost(req); host != "" {
		if prior := out.Header.Get("X-Forwarded-For"); prior != "" {
			host = prior + ", " + host
		}
		out.Header.Set("X-Forwarded-For", host)
	}
	if id := req.GetString(web.ExtRequestID); id != "" {
		out.Header.Set("X-Request-Id", id)
	}

	return out, nil
}

func (f *Forwarder) stripped(path string) string {
	if f.opts.StripPrefix == "" {
		return path
	}
	rest := strings.TrimPrefix(path, f.opts.StripPrefix)
	if rest == path {
		return path
	}
	if rest == "" {
		return "/"
	}
	if !strings.HasPrefix(rest, "/") {
		return path
	}
	return rest
}

func (f *Forwarder) emit(event metrics.MetricEvent) {
	if f.opts.Metrics != nil {
		f.opts.Metrics.Emit(event)
	}
}

func joinPath(base, path string) string {
	switch {
	case base == "" || base == "/":
		return path
	case strings.HasSuffix(base, "/"):
		return base + strings.TrimPrefix(path, "/")
	default:
		return base + path
	}
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// cacheable allows storing successful reads the upstream did not mark private.
func cacheable(method string, res *http.Response) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	if res.StatusCode != http.StatusOK {
		return false
	}
	cc := strings.ToLower(res.Header.Get("Cache-Control"))
	return !strings.Contains(cc, "no-store") && !strings.Contains(cc, "private")
}

func remoteHost(req *web.Request) string {
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return host
	}
	return req.RemoteAddr
}
