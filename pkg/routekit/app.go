package routekit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/routekit/config"
	"github.com/angeloszaimis/routekit/internal/cache"
	"github.com/angeloszaimis/routekit/internal/circuitbreaker"
	"github.com/angeloszaimis/routekit/internal/decisionlog"
	"github.com/angeloszaimis/routekit/internal/healthcheck"
	"github.com/angeloszaimis/routekit/internal/loadbalancer"
	"github.com/angeloszaimis/routekit/internal/maintenance"
	"github.com/angeloszaimis/routekit/internal/metrics"
	"github.com/angeloszaimis/routekit/internal/middleware"
	"github.com/angeloszaimis/routekit/internal/ratelimit"
	"github.com/angeloszaimis/routekit/internal/router"
	"github.com/angeloszaimis/routekit/internal/upstream"
	"github.com/angeloszaimis/routekit/internal/web"
)

// Names of the middleware every App registers.
const (
	MiddlewareRequestID      = "request_id"
	MiddlewareRecover        = "recover"
	MiddlewareLogging        = "logging"
	MiddlewareMetrics        = "metrics"
	MiddlewareTimeout        = "timeout"
	MiddlewareRateLimit      = "rate_limit"
	MiddlewareCache          = "cache"
	MiddlewareCircuitBreaker = "circuit_breaker"
)

// proxyMethods are forwarded to the upstream pool. HEAD is served by the
// dispatcher's GET fallback.
var proxyMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	router      *router.Router
	middlewares *middleware.Registry

	registry  *prometheus.Registry
	collector *metrics.Collector

	cache     *cache.Engine
	limiter   *ratelimit.Limiter
	breakers  *circuitbreaker.Registry
	decisions decisionlog.Store
	redis     *redis.Client

	targets          []*upstream.Target
	balancer         *loadbalancer.LoadBalancer
	upstreamBreakers *circuitbreaker.Registry
	checker          *healthcheck.Checker
	scheduler        *maintenance.Scheduler

	startOnce sync.Once
	wg        sync.WaitGroup
}

// New builds every component named by cfg. When targets are configured the
// proxy route is registered under cfg.Proxy.Prefix with the
// cfg.Proxy.Middleware chain.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	a := &App{
		cfg:         cfg,
		logger:      log,
		router:      router.New(log),
		middlewares: middleware.NewRegistry(),
		registry:    prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector(cfg.Metrics.Buffer, log, a.registry)

	var err error
	a.cache, err = cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		Shards:     cfg.Cache.Shards,
	})
	if err != nil {
		return nil, err
	}

	a.limiter = ratelimit.New(ratelimit.Options{
		Capacity:        cfg.RateLimit.Capacity,
		RefillPerSecond: cfg.RateLimit.RefillPerSecond,
	})

	a.breakers = circuitbreaker.NewRegistry(a.breakerSettings())
	a.upstreamBreakers = circuitbreaker.NewRegistry(a.breakerSettings())

	a.decisions, a.redis, err = newDecisionLog(ctx, cfg.DecisionLog, log)
	if err != nil {
		return nil, err
	}

	if err := a.registerGauges(); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.registerBuiltins(); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.setupUpstreams(); err != nil {
		a.Close()
		return nil, err
	}

	a.scheduler, err = maintenance.New(cfg.Maintenance.SweepCron, log,
		maintenance.SweepCache(a.cache),
		maintenance.SweepLimiter(a.limiter, cfg.RateLimit.IdleTTLDuration()),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) breakerSettings() circuitbreaker.Settings {
	cb := a.cfg.CircuitBreaker
	return circuitbreaker.Settings{
		FailureThreshold:   cb.FailureThreshold,
		Window:             cb.WindowDuration(),
		Cooldown:           cb.CooldownDuration(),
		HalfOpenProbeCount: cb.HalfOpenProbeCount,
		SuccessThreshold:   cb.SuccessThreshold,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			a.logger.Info("Circuit breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			a.collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventBreakerChanged,
				Backend: name,
				State:   to.String(),
			})
		},
	}
}

func (a *App) registerGauges() error {
	type gauge struct {
		name, help string
		fn         func() float64
	}
	gauges := []gauge{
		{"cache_entries", "Responses currently held by the cache.", func() float64 { return float64(a.cache.Len()) }},
		{"rate_limit_buckets", "Client buckets tracked by the rate limiter.", func() float64 { return float64(a.limiter.Len()) }},
	}
	if writer, ok := a.decisions.(*decisionlog.Async); ok {
		gauges = append(gauges, gauge{"decision_log_pending", "Decisions queued for the decision log backend.", func() float64 { return float64(writer.Pending()) }})
	}
	for _, g := range gauges {
		if err := a.collector.RegisterGauge(g.name, g.help, g.fn); err != nil {
			return fmt.Errorf("register gauge %s: %w", g.name, err)
		}
	}
	return nil
}

func (a *App) registerBuiltins() error {
	cfg := a.cfg
	keyFunc := ratelimit.ClientKey(cfg.RateLimit.KeyHeader, cfg.RateLimit.TrustForwardedFor)

	builtins := []struct {
		name string
		mw   middleware.Middleware
	}{
		{MiddlewareRequestID, middleware.RequestID()},
		{MiddlewareRecover, middleware.Recover(a.logger)},
		{MiddlewareLogging, middleware.Logging(middleware.LoggingOptions{
			Logger:           a.logger,
			Headers:          cfg.Logging.Headers,
			SensitiveHeaders: cfg.Logging.SensitiveHeaders,
		})},
		{MiddlewareMetrics, middleware.Metrics(a.collector)},
		{MiddlewareTimeout, middleware.Timeout(cfg.Proxy.TimeoutDuration())},
		{MiddlewareRateLimit, middleware.RateLimit(middleware.RateLimitOptions{
			Limiter:   a.limiter,
			KeyFunc:   keyFunc,
			Headers:   true,
			Decisions: a.decisions,
			Metrics:   a.collector,
			Logger:    a.logger,
		})},
		{MiddlewareCache, middleware.Cache(middleware.CacheOptions{
			Engine:  a.cache,
			Keyer:   cache.NewKeyer(cfg.Cache.VaryHeaders, cfg.Cache.QueryKeys),
			TTL:     cfg.Cache.DefaultTTLDuration(),
			Metrics: a.collector,
		})},
		{MiddlewareCircuitBreaker, middleware.CircuitBreaker(middleware.CircuitBreakerOptions{
			Breakers:  a.breakers,
			Decisions: a.decisions,
			Metrics:   a.collector,
			Logger:    a.logger,
		})},
	}

	for _, b := range builtins {
		if err := a.middlewares.Use(b.name, b.mw); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) setupUpstreams() error {
	cfg := a.cfg

	targets, err := initializeTargets(cfg, a.logger)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}
	a.targets = targets

	strat := createStrategy(a.logger, cfg.LoadBalancer.Strategy, cfg.LoadBalancer.VirtualNodes)
	a.balancer = loadbalancer.NewLoadBalancer(strat, targets, a.logger)
	a.balancer.OnHealthChange(func(t *upstream.Target, healthy bool) {
		a.collector.Emit(metrics.MetricEvent{
			Type:    metrics.EventHealthChanged,
			Backend: t.ID(),
			Healthy: healthy,
		})
	})

	if err := a.collector.RegisterGauge("upstream_healthy_targets", "Targets currently eligible for selection.",
		func() float64 { return float64(a.healthyTargets()) }); err != nil {
		return fmt.Errorf("register gauge upstream_healthy_targets: %w", err)
	}

	a.checker = healthcheck.New(a.balancer, healthcheck.Options{
		Path:     cfg.LoadBalancer.HealthCheck.Path,
		Interval: cfg.LoadBalancer.HealthCheck.IntervalDuration(),
		Logger:   a.logger,
	})

	prefix := strings.TrimSuffix(cfg.Proxy.Prefix, "/")
	forwarder := upstream.NewForwarder(upstream.ForwarderOptions{
		Balancer:    a.balancer,
		Breakers:    a.upstreamBreakers,
		Timeout:     cfg.Proxy.TimeoutDuration(),
		StripPrefix: prefix,
		KeyFunc:     ratelimit.ClientKey(cfg.RateLimit.KeyHeader, cfg.RateLimit.TrustForwardedFor),
		Metrics:     a.collector,
		Logger:      a.logger,
	})

	patterns := []string{prefix + "/{path...}"}
	if prefix != "" {
		patterns = append(patterns, prefix)
	} else {
		patterns = append(patterns, "/")
	}

	for _, method := range proxyMethods {
		for _, pattern := range patterns {
			if err := a.Route(method, pattern, forwarder, cfg.Proxy.Middleware...); err != nil {
				return fmt.Errorf("register proxy route %s %s: %w", method, pattern, err)
			}
		}
	}

	a.logger.Info("Proxy enabled",
		slog.String("prefix", cfg.Proxy.Prefix),
		slog.String("strategy", cfg.LoadBalancer.Strategy),
		slog.Int("targets", len(targets)))
	return nil
}

func (a *App) healthyTargets() int {
	n := 0
	for _, t := range a.targets {
		if t.IsHealthy() {
			n++
		}
	}
	return n
}

// Route registers handler for method and pattern behind the named
// middleware, outermost first. Unknown names and conflicting patterns are
// errors; registration fails once the first request has been dispatched.
func (a *App) Route(method, pattern string, handler web.Handler, middlewareNames ...string) error {
	chain, err := a.middlewares.Resolve(middlewareNames...)
	if err != nil {
		return err
	}
	return a.router.Register(method, pattern, handler, chain)
}

// RegisterMiddleware adds a named before/after pair that routes can refer to.
func (a *App) RegisterMiddleware(name string, before middleware.BeforeFunc, after middleware.AfterFunc) error {
	return a.middlewares.Register(name, before, after)
}

// UseMiddleware adds a named wrapping middleware that routes can refer to.
func (a *App) UseMiddleware(name string, mw middleware.Middleware) error {
	return a.middlewares.Use(name, mw)
}

// Start launches the background loops: the metrics collector, the decision
// log writer, the health checker and the maintenance scheduler. They stop
// when ctx is cancelled; Wait blocks until they have.
func (a *App) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		a.collector.Start(ctx)

		if writer, ok := a.decisions.(*decisionlog.Async); ok {
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				writer.Run(ctx)
			}()
		}

		if a.checker != nil {
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.checker.Run(ctx, a.targets)
			}()
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.scheduler.Run(ctx)
		}()
	})
}

func (a *App) Wait() {
	a.wg.Wait()
}

// Close releases the redis connection backing the decision log, if any.
func (a *App) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Router() *router.Router {
	return a.router
}

// Gatherer exposes the Prometheus registry for promhttp.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.registry
}

// MetricsHandler serves the JSON metrics snapshot.
func (a *App) MetricsHandler() http.HandlerFunc {
	return a.collector.Handler(a.cfg.LoadBalancer.Strategy)
}

func (a *App) Middlewares() []string {
	return a.middlewares.Names()
}
