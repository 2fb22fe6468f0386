package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/angeloszaimis/routekit/internal/upstream"
)

const (
	DefaultPath     = "/health"
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Reporter receives probe results. *loadbalancer.LoadBalancer satisfies it.
type Reporter interface {
	SetHealthy(t *upstream.Target, healthy bool)
}

type Options struct {
	Path     string
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
	Logger   *slog.Logger
}

// Checker runs one probe loop per target.
type Checker struct {
	opts     Options
	reporter Reporter
}

func New(reporter Reporter, opts Options) *Checker {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Checker{opts: opts, reporter: reporter}
}

// Run probes every target until ctx is cancelled and returns once all probe
// loops have stopped.
func (c *Checker) Run(ctx context.Context, targets []*upstream.Target) {
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.HealthCheck(ctx, t)
		}()
	}
	wg.Wait()
}

// HealthCheck periodically sends GET requests to the target's health path.
// A 200 marks it healthy, anything else or a transport error marks it down.
func (c *Checker) HealthCheck(ctx context.Context, target *upstream.Target) {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.opts.Logger.Info("Health check stopped",
				slog.String("target", target.ID()))
			return

		case <-ticker.C:
			c.reporter.SetHealthy(target, c.Probe(ctx, target))
		}
	}
}

// Probe performs a single health request.
func (c *Checker) Probe(ctx context.Context, target *upstream.Target) bool {
	healthURL := target.URL().ResolveReference(&url.URL{Path: c.opts.Path})

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return false
	}

	res, err := c.opts.Client.Do(req)
	if err != nil {
		c.opts.Logger.Debug("Health probe failed",
			slog.String("target", target.ID()),
			slog.Any("err", err))
		return false
	}
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()

	return res.StatusCode == http.StatusOK
}
