package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/circuitbreaker"
	"github.com/angeloszaimis/routekit/internal/decisionlog"
	"github.com/angeloszaimis/routekit/internal/metrics"
	"github.com/angeloszaimis/routekit/internal/middleware"
	"github.com/angeloszaimis/routekit/internal/ratelimit"
	"github.com/angeloszaimis/routekit/internal/web"
)

var _ = Describe("RateLimit", func() {
	var (
		clock     *fakeClock
		decisions *decisionlog.MemoryStore
		emitter   *fakeEmitter
		h         web.Handler
	)

	request := func(client string) *web.Request {
		req := web.NewRequest(http.MethodGet, "/items", nil)
		req.RemoteAddr = client + ":1234"
		return req
	}

	BeforeEach(func() {
		clock = newFakeClock()
		decisions = decisionlog.NewMemoryStore()
		emitter = &fakeEmitter{}
		limiter := ratelimit.New(ratelimit.Options{Capacity: 2, RefillPerSecond: 1, Now: clock.Now})
		h = middleware.Apply(okHandler("ok"), middleware.RateLimit(middleware.RateLimitOptions{
			Limiter:   limiter,
			Headers:   true,
			Decisions: decisions,
			Metrics:   emitter,
		}))
	})

	It("should admit up to capacity then answer 429", func() {
		for i := 0; i < 2; i++ {
			resp, err := h.Handle(request("10.0.0.1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("X-RateLimit-Limit")).To(Equal("2"))
		}

		resp, err := h.Handle(request("10.0.0.1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusTooManyRequests))
		Expect(resp.ShortCircuit).To(BeTrue())
		Expect(resp.Cause).To(MatchError(web.ErrRateLimited))
		Expect(resp.Header.Get("Retry-After")).To(Equal("1"))
		Expect(resp.Header.Get("X-RateLimit-Remaining")).To(Equal("0"))
	})

	It("should keep clients apart", func() {
		_, _ = h.Handle(request("10.0.0.1"))
		_, _ = h.Handle(request("10.0.0.1"))

		resp, _ := h.Handle(request("10.0.0.2"))
		Expect(resp.Status).To(Equal(http.StatusOK))
	})

	It("should admit again after refill", func() {
		_, _ = h.Handle(request("10.0.0.1"))
		_, _ = h.Handle(request("10.0.0.1"))
		clock.Advance(time.Second)

		resp, _ := h.Handle(request("10.0.0.1"))
		Expect(resp.Status).To(Equal(http.StatusOK))
	})

	It("should record decisions and emit policy events", func() {
		for i := 0; i < 3; i++ {
			_, _ = h.Handle(request("10.0.0.1"))
		}

		Expect(decisions.Total()).To(Equal(decisionlog.Counters{Allowed: 2, Denied: 1}))
		Expect(decisions.Snapshot().ByRoute).To(HaveKey("GET /items"))

		events := emitter.Events()
		Expect(events).To(HaveLen(3))
		Expect(events[2].Type).To(Equal(metrics.EventPolicyDecision))
		Expect(events[2].Policy).To(Equal(middleware.PolicyRateLimit))
		Expect(events[2].Allowed).To(BeFalse())
	})

	It("should expose the client key to inner links", func() {
		var seen string
		inner := web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			seen = req.GetString(web.ExtClientID)
			return web.NoContent(), nil
		})
		limiter := ratelimit.New(ratelimit.Options{Capacity: 1, RefillPerSecond: 1, Now: clock.Now})
		_, err := middleware.RateLimit(middleware.RateLimitOptions{Limiter: limiter})(inner).Handle(request("192.0.2.9"))
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal("192.0.2.9"))
	})
})

var _ = Describe("CircuitBreaker", func() {
	var (
		clock    *fakeClock
		breakers *circuitbreaker.Registry
		calls    int
		fail     bool
		h        web.Handler
	)

	BeforeEach(func() {
		clock = newFakeClock()
		calls = 0
		fail = true
		breakers = circuitbreaker.NewRegistry(circuitbreaker.Settings{
			FailureThreshold: 3,
			Cooldown:         10 * time.Second,
			Now:              clock.Now,
		})
		inner := web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			calls++
			if fail {
				return nil, errors.New("backend exploded")
			}
			return web.Text(http.StatusOK, "ok"), nil
		})
		h = middleware.Apply(inner, middleware.CircuitBreaker(middleware.CircuitBreakerOptions{Breakers: breakers}))
	})

	request := func() *web.Request {
		req := web.NewRequest(http.MethodGet, "/orders", nil)
		req.Set(web.ExtRouteID, "GET /orders")
		return req
	}

	It("should open after three failures and answer 503 without calling the handler", func() {
		for i := 0; i < 3; i++ {
			_, err := h.Handle(request())
			Expect(err).To(MatchError("backend exploded"))
		}

		resp, err := h.Handle(request())
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusServiceUnavailable))
		Expect(resp.Cause).To(MatchError(web.ErrCircuitOpen))
		Expect(calls).To(Equal(3))
		Expect(breakers.GetBreaker("GET /orders").State()).To(Equal(circuitbreaker.StateOpen))
	})

	It("should close again after a successful probe", func() {
		for i := 0; i < 3; i++ {
			_, _ = h.Handle(request())
		}
		clock.Advance(10 * time.Second)
		fail = false

		resp, err := h.Handle(request())
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusOK))
		Expect(breakers.GetBreaker("GET /orders").State()).To(Equal(circuitbreaker.StateClosed))
	})

	It("should not count client errors as failures", func() {
		clientErr := web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			return web.Text(http.StatusNotFound, "nope"), nil
		})
		h = middleware.Apply(clientErr, middleware.CircuitBreaker(middleware.CircuitBreakerOptions{Breakers: breakers}))

		for i := 0; i < 5; i++ {
			resp, _ := h.Handle(request())
			Expect(resp.Status).To(Equal(http.StatusNotFound))
		}
		Expect(breakers.GetBreaker("GET /orders").Failures()).To(BeZero())
	})

	It("should free the half-open slot when the handler panics", func() {
		explode := true
		panicky := web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			if explode {
				panic("handler exploded mid-trial")
			}
			return web.Text(http.StatusOK, "ok"), nil
		})
		h = middleware.Apply(panicky,
			middleware.Recover(nil),
			middleware.CircuitBreaker(middleware.CircuitBreakerOptions{Breakers: breakers}),
		)
		cb := breakers.GetBreaker("GET /orders")
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

		clock.Advance(10 * time.Second)
		_, err := h.Handle(request())
		Expect(err).To(MatchError(ContainSubstring("handler exploded mid-trial")))
		Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

		explode = false
		clock.Advance(10 * time.Second)
		resp, err := h.Handle(request())
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusOK))
		Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
	})
})

var _ = Describe("Timeout", func() {
	It("should fail slow handlers with ErrTimeout", func() {
		slow := web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

		_, err := middleware.Timeout(20 * time.Millisecond)(slow).Handle(web.NewRequest(http.MethodGet, "/", nil))
		Expect(err).To(MatchError(web.ErrTimeout))
		Expect(web.StatusFor(err)).To(Equal(http.StatusGatewayTimeout))
	})

	It("should pass fast results through", func() {
		resp, err := middleware.Timeout(time.Second)(okHandler("fast")).Handle(web.NewRequest(http.MethodGet, "/", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(resp.Body)).To(Equal("fast"))
	})

	It("should give up when the caller cancels", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			time.Sleep(50 * time.Millisecond)
			return web.NoContent(), nil
		})

		_, err := middleware.Timeout(time.Second)(slow).Handle(web.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		Expect(err).To(MatchError(context.Canceled))
	})
})
