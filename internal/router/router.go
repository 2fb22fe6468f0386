package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/angeloszaimis/routekit/internal/middleware"
	"github.com/angeloszaimis/routekit/internal/web"
)

var ErrRouterFrozen = errors.New("router is frozen")

// RouteInfo describes a registered route.
type RouteInfo struct {
	ID      string `json:"id"`
	Method  string `json:"method"`
	Pattern string `json:"pattern"`
}

type route struct {
	info    RouteInfo
	pattern *pattern
	order   int
	handler web.Handler
}

type Router struct {
	logger *slog.Logger

	mutex  sync.Mutex
	routes []*route
	shapes map[string]string

	freezeOnce sync.Once
	frozen     atomic.Bool
	// byMethod is built at freeze time and never written again.
	byMethod map[string][]*route
}

func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		logger: logger,
		shapes: make(map[string]string),
	}
}

// Register binds handler to method and pattern. The chain is composed now,
// with chain[0] outermost and the handler innermost.
func (r *Router) Register(method, pattern string, handler web.Handler, chain ...middleware.Middleware) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return fmt.Errorf("%w: empty method for %q", ErrInvalidPattern, pattern)
	}
	if handler == nil {
		return fmt.Errorf("route %s %s: nil handler", method, pattern)
	}

	p, err := parsePattern(pattern)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("%w: cannot register %s %s", ErrRouterFrozen, method, pattern)
	}

	identity := method + " " + p.shape()
	if existing, ok := r.shapes[identity]; ok {
		return fmt.Errorf("%w: %s %s clashes with %s", web.ErrRouteConflict, method, pattern, existing)
	}

	id := method + " " + pattern
	r.shapes[identity] = id
	r.routes = append(r.routes, &route{
		info:    RouteInfo{ID: id, Method: method, Pattern: pattern},
		pattern: p,
		order:   len(r.routes),
		handler: middleware.Apply(handler, chain...),
	})
	return nil
}

func (r *Router) freeze() {
	r.freezeOnce.Do(func() {
		r.mutex.Lock()
		defer r.mutex.Unlock()

		byMethod := make(map[string][]*route)
		for _, rt := range r.routes {
			byMethod[rt.info.Method] = append(byMethod[rt.info.Method], rt)
		}
		for _, list := range byMethod {
			sort.SliceStable(list, func(i, j int) bool {
				return ranksBefore(list[i], list[j])
			})
		}

		r.byMethod = byMethod
		r.frozen.Store(true)
	})
}

func ranksBefore(a, b *route) bool {
	if a.pattern.literals != b.pattern.literals {
		return a.pattern.literals > b.pattern.literals
	}
	if a.pattern.catchAll != b.pattern.catchAll {
		return !a.pattern.catchAll
	}
	return a.order < b.order
}

func (r *Router) lookup(method string, segments []string) (*route, map[string]string) {
	for _, rt := range r.byMethod[method] {
		if params, ok := rt.pattern.match(segments); ok {
			return rt, params
		}
	}
	return nil, nil
}

// Dispatch routes req and always returns a response. Errors from the chain
// are rendered as JSON error bodies and panics become 500s.
func (r *Router) Dispatch(req *web.Request) *web.Response {
	r.freeze()

	if rt, params := r.lookup(req.Method, req.Segments); rt != nil {
		return r.invoke(rt, req, params)
	}

	if req.Method == http.MethodHead {
		if rt, params := r.lookup(http.MethodGet, req.Segments); rt != nil {
			return stripBody(r.invoke(rt, req, params))
		}
	}

	if allowed := r.allowedMethods(req.Segments); len(allowed) > 0 {
		resp := web.ErrorResponse(fmt.Errorf("%w: %s %s", web.ErrMethodNotAllowed, req.Method, req.Path))
		resp.Header.Set("Allow", strings.Join(allowed, ", "))
		return resp
	}

	return web.ErrorResponse(fmt.Errorf("%w: %s", web.ErrNotFound, req.Path))
}

func (r *Router) invoke(rt *route, req *web.Request, params map[string]string) (resp *web.Response) {
	req = req.WithParams(params)
	req.Set(web.ExtRouteID, rt.info.ID)

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Route handler panicked",
				slog.String("route", rt.info.ID),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			resp = web.ErrorResponse(fmt.Errorf("panic in %s: %v", rt.info.ID, p))
		}
	}()

	resp, err := rt.handler.Handle(req)
	switch {
	case err != nil:
		return web.ErrorResponse(err)
	case resp == nil:
		return web.ErrorResponse(fmt.Errorf("route %s: %w", rt.info.ID, web.ErrNoResponse))
	default:
		return resp
	}
}

// stripBody keeps the GET headers, including the length of the body that
// would have been sent.
func stripBody(resp *web.Response) *web.Response {
	head := resp.Clone()
	if head.Header.Get("Content-Length") == "" {
		head.Header.Set("Content-Length", resp.ContentLength())
	}
	head.Body = nil
	return head
}

func (r *Router) allowedMethods(segments []string) []string {
	var allowed []string
	for method, list := range r.byMethod {
		for _, rt := range list {
			if _, ok := rt.pattern.match(segments); ok {
				allowed = append(allowed, method)
				break
			}
		}
	}
	if slices.Contains(allowed, http.MethodGet) && !slices.Contains(allowed, http.MethodHead) {
		allowed = append(allowed, http.MethodHead)
	}
	sort.Strings(allowed)
	return allowed
}

// Routes lists routes in registration order.
func (r *Router) Routes() []RouteInfo {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]RouteInfo, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.info
	}
	return out
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	web.Adapter(r).ServeHTTP(w, req)
}
