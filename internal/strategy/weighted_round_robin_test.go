package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/strategy"
	"github.com/angeloszaimis/routekit/internal/upstream"
)

var _ = Describe("WeightedRoundRobinStrategy", func() {
	var strat strategy.Strategy

	BeforeEach(func() {
		strat = strategy.NewWeightedRoundRobinStrategy()
	})

	Context("with equal weights", func() {
		It("should distribute requests evenly", func() {
			pool := targets(3)
			counts := make(map[*upstream.Target]int)

			for i := 0; i < 300; i++ {
				counts[strat.Pick(pool)]++
			}

			for _, t := range pool {
				Expect(counts[t]).To(Equal(100))
			}
		})
	})

	Context("with different weights", func() {
		var pool []*upstream.Target

		BeforeEach(func() {
			pool = []*upstream.Target{
				mustTarget("http://localhost:8081", 5),
				mustTarget("http://localhost:8082", 3),
				mustTarget("http://localhost:8083", 1),
			}
		})

		It("should distribute requests proportionally to weights", func() {
			counts := make(map[*upstream.Target]int)
			for i := 0; i < 900; i++ {
				counts[strat.Pick(pool)]++
			}

			Expect(counts[pool[0]]).To(Equal(500))
			Expect(counts[pool[1]]).To(Equal(300))
			Expect(counts[pool[2]]).To(Equal(100))
		})

		It("should interleave instead of bursting", func() {
			// Smooth WRR for 5:3:1 never picks the heavy target more than
			// twice in a row.
			run := 0
			for i := 0; i < 90; i++ {
				if strat.Pick(pool) == pool[0] {
					run++
					Expect(run).To(BeNumerically("<=", 2))
				} else {
					run = 0
				}
			}
		})
	})

	Context("when the pool changes", func() {
		It("should forget removed targets", func() {
			pool := targets(3)
			for i := 0; i < 10; i++ {
				strat.Pick(pool)
			}

			shrunk := pool[1:]
			counts := make(map[*upstream.Target]int)
			for i := 0; i < 10; i++ {
				counts[strat.Pick(shrunk)]++
			}
			Expect(counts).NotTo(HaveKey(pool[0]))
			Expect(counts[pool[1]]).To(Equal(5))
			Expect(counts[pool[2]]).To(Equal(5))
		})
	})
})
