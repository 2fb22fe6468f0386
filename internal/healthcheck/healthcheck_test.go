package healthcheck_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/healthcheck"
	"github.com/angeloszaimis/routekit/internal/loadbalancer"
	"github.com/angeloszaimis/routekit/internal/strategy"
	"github.com/angeloszaimis/routekit/internal/upstream"
)

var _ = Describe("Healthcheck", func() {
	var (
		server  *httptest.Server
		status  atomic.Int32
		target  *upstream.Target
		lb      *loadbalancer.LoadBalancer
		checker *healthcheck.Checker
	)

	BeforeEach(func() {
		status.Store(http.StatusOK)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/ready" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(int(status.Load()))
		}))

		var err error
		target, err = upstream.Parse(server.URL, 1)
		Expect(err).NotTo(HaveOccurred())
		target.SetHealthy(false)

		lb = loadbalancer.NewLoadBalancer(strategy.NewRoundRobinStrategy(), []*upstream.Target{target}, nil)
		checker = healthcheck.New(lb, healthcheck.Options{
			Path:     "/ready",
			Interval: 50 * time.Millisecond,
			Timeout:  time.Second,
		})
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Probe", func() {
		It("should succeed on 200", func() {
			Expect(checker.Probe(context.Background(), target)).To(BeTrue())
		})

		It("should fail on other statuses", func() {
			status.Store(http.StatusServiceUnavailable)
			Expect(checker.Probe(context.Background(), target)).To(BeFalse())
		})

		It("should fail when the target is unreachable", func() {
			server.Close()
			Expect(checker.Probe(context.Background(), target)).To(BeFalse())
		})
	})

	Describe("Run", func() {
		It("should bring a healthy target back into rotation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			changes := make(chan bool, 4)
			lb.OnHealthChange(func(_ *upstream.Target, healthy bool) { changes <- healthy })

			go checker.Run(ctx, lb.Targets())

			Eventually(target.IsHealthy).Should(BeTrue())
			Eventually(changes).Should(Receive(BeTrue()))
		})

		It("should take a failing target out of rotation", func() {
			target.SetHealthy(true)
			status.Store(http.StatusInternalServerError)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go checker.Run(ctx, lb.Targets())

			Eventually(target.IsHealthy).Should(BeFalse())
		})

		It("should return once the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				checker.Run(ctx, lb.Targets())
				close(done)
			}()

			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})
