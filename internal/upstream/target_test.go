package upstream_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/upstream"
)

var _ = Describe("Target", func() {
	var t *upstream.Target

	BeforeEach(func() {
		var err error
		t, err = upstream.Parse("http://localhost:8081", 2)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Parse", func() {
		It("should keep the URL and weight", func() {
			Expect(t.ID()).To(Equal("http://localhost:8081"))
			Expect(t.URL().Host).To(Equal("localhost:8081"))
			Expect(t.Weight()).To(Equal(2))
		})

		It("should start healthy with no connections", func() {
			Expect(t.IsHealthy()).To(BeTrue())
			Expect(t.ActiveConnections()).To(Equal(0))
		})

		It("should raise weights below one", func() {
			low, err := upstream.Parse("https://example.com:443", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(low.Weight()).To(Equal(1))
		})

		It("should reject relative or non-http URLs", func() {
			_, err := upstream.Parse("localhost:8081", 1)
			Expect(err).To(HaveOccurred())
			_, err = upstream.Parse("ftp://files.example.com", 1)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Health Management", func() {
		It("should report whether SetHealthy changed anything", func() {
			Expect(t.SetHealthy(true)).To(BeFalse())
			Expect(t.SetHealthy(false)).To(BeTrue())
			Expect(t.IsHealthy()).To(BeFalse())
		})

		It("should go down after max consecutive failures and recover on success", func() {
			t.SetMaxFails(2)
			Expect(t.RecordOutcome(false)).To(BeFalse())
			Expect(t.RecordOutcome(false)).To(BeTrue())
			Expect(t.IsHealthy()).To(BeFalse())

			Expect(t.RecordOutcome(true)).To(BeTrue())
			Expect(t.IsHealthy()).To(BeTrue())
		})

		It("should reset the failure streak on success", func() {
			t.SetMaxFails(2)
			t.RecordOutcome(false)
			t.RecordOutcome(true)
			t.RecordOutcome(false)
			Expect(t.IsHealthy()).To(BeTrue())
		})

		It("should be thread-safe", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(healthy bool) {
					defer wg.Done()
					t.SetHealthy(healthy)
					_ = t.IsHealthy()
				}(i%2 == 0)
			}
			wg.Wait()
		})
	})

	Describe("Connection Tracking", func() {
		It("should count concurrent increments", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					t.IncrementConn()
				}()
			}
			wg.Wait()
			Expect(t.ActiveConnections()).To(Equal(100))
		})

		It("should not go below zero", func() {
			t.DecrementConn()
			t.DecrementConn()
			Expect(t.ActiveConnections()).To(Equal(0))
		})
	})

	Describe("Response Time Tracking (EWMA)", func() {
		It("should be zero before any sample", func() {
			Expect(t.EWMATime()).To(BeZero())
		})

		It("should seed with the first sample", func() {
			t.RecordResponse(100 * time.Millisecond)
			Expect(t.EWMATime()).To(Equal(100 * time.Millisecond))
		})

		It("should smooth later samples", func() {
			t.RecordResponse(100 * time.Millisecond)
			t.RecordResponse(200 * time.Millisecond)
			// 0.8*100ms + 0.2*200ms
			Expect(t.EWMATime()).To(Equal(120 * time.Millisecond))
		})
	})
})
