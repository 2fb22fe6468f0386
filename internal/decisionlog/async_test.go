package decisionlog_test

import (
	"context"
	"errors"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/decisionlog"
)

// blockingStore holds every write until release is closed.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Record(ctx context.Context, _ decisionlog.Event) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return nil
}

type failingStore struct{}

func (failingStore) Record(context.Context, decisionlog.Event) error {
	return errors.New("backend down")
}

var _ = Describe("Async", func() {
	It("should return from Record before the backend has answered", func() {
		backend := &blockingStore{entered: make(chan struct{}, 1), release: make(chan struct{})}
		async := decisionlog.NewAsync(backend, decisionlog.AsyncOptions{Buffer: 4})

		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})
		go func() {
			async.Run(ctx)
			close(stopped)
		}()

		returned := make(chan error, 1)
		go func() {
			returned <- async.Record(context.Background(), decisionlog.Event{Policy: "rate_limit"})
		}()
		Eventually(returned).Should(Receive(BeNil()))
		Eventually(backend.entered).Should(Receive())

		close(backend.release)
		cancel()
		Eventually(stopped).Should(BeClosed())
	})

	It("should drop and count events once the buffer is full", func() {
		backend := &blockingStore{entered: make(chan struct{}, 1), release: make(chan struct{})}
		async := decisionlog.NewAsync(backend, decisionlog.AsyncOptions{Buffer: 2})

		for i := 0; i < 5; i++ {
			Expect(async.Record(context.Background(), decisionlog.Event{Policy: "rate_limit"})).To(Succeed())
		}

		Expect(async.Pending()).To(Equal(2))
		Expect(async.Dropped()).To(Equal(uint64(3)))
		close(backend.release)
	})

	It("should flush buffered events when stopped", func() {
		store := decisionlog.NewMemoryStore()
		async := decisionlog.NewAsync(store, decisionlog.AsyncOptions{Buffer: 16})

		for i := 0; i < 10; i++ {
			_ = async.Record(context.Background(), decisionlog.Event{Policy: "circuit_breaker", Allowed: i%2 == 0})
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		async.Run(ctx)

		Expect(store.Total()).To(Equal(decisionlog.Counters{Allowed: 5, Denied: 5}))
		Expect(async.Pending()).To(BeZero())
	})

	It("should count writes the backend rejects", func() {
		async := decisionlog.NewAsync(failingStore{}, decisionlog.AsyncOptions{})
		_ = async.Record(context.Background(), decisionlog.Event{Policy: "rate_limit"})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		async.Run(ctx)

		Expect(async.Failed()).To(Equal(uint64(1)))
	})

	It("should write through to redis in the background", func() {
		mr := miniredis.RunT(GinkgoT())
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(rdb.Close)

		store := decisionlog.NewRedisStore(rdb, decisionlog.WithPrefix("async:"))
		async := decisionlog.NewAsync(store, decisionlog.AsyncOptions{WriteTimeout: time.Second})
		Expect(async.Store()).To(BeIdenticalTo(store))

		ctx, cancel := context.WithCancel(context.Background())
		DeferCleanup(cancel)
		go async.Run(ctx)

		_ = async.Record(context.Background(), decisionlog.Event{Policy: "rate_limit", Allowed: false})

		Eventually(func() string {
			return mr.HGet("async:total", "denied")
		}).Should(Equal("1"))
	})
})
