package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/config"
	"github.com/angeloszaimis/routekit/internal/web"
	"github.com/angeloszaimis/routekit/pkg/routekit"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:         config.ServerConfig{Address: ":0", Environment: config.EnvDev},
		RateLimit:      config.RateLimitConfig{Capacity: 5, RefillPerSecond: 1, IdleTTL: "15m"},
		CircuitBreaker: config.CircuitBreakerConfig{FailureThreshold: 3, Window: "30s", Cooldown: "10s"},
		Cache:          config.CacheConfig{DefaultTTL: "30s", MaxEntries: 16, Shards: 2},
		LoadBalancer:   config.LoadBalancerConfig{Strategy: "round-robin"},
		Proxy:          config.ProxyConfig{Prefix: "/", Timeout: "1s"},
		DecisionLog:    config.DecisionLogConfig{Backend: config.DecisionLogMemory},
		Maintenance:    config.MaintenanceConfig{SweepCron: "* * * * *"},
		Metrics:        config.MetricsConfig{Path: "/metrics", Buffer: 16},
	}
}

var _ = Describe("setupRouter", func() {
	var (
		app *routekit.App
		mux http.Handler
	)

	BeforeEach(func() {
		var err error
		app, err = routekit.New(context.Background(), testConfig(), nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(app.Route(http.MethodGet, "/greet/{name}",
			web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
				name, _ := req.Param("name")
				return web.Text(http.StatusOK, "hello "+name), nil
			}),
		)).To(Succeed())

		mux = setupRouter(app, "/metrics")
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	It("answers the liveness probe", func() {
		rec := get("/healthz")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("."))
	})

	It("serves policy stats as JSON", func() {
		rec := get("/stats")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var stats routekit.Stats
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.Decisions).NotTo(BeNil())
	})

	It("serves Prometheus metrics", func() {
		rec := get("/metrics")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("routekit_cache_entries"))
	})

	It("hands every other path to the dispatcher", func() {
		rec := get("/greet/ada")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("hello ada"))

		Expect(get("/missing").Code).To(Equal(http.StatusNotFound))
	})
})
