package strategy

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/angeloszaimis/routekit/internal/upstream"
)

const DefaultVirtualNodes = 100

type consistentHashStrategy struct {
	virtualNodes int
	ring         atomic.Pointer[ringSnapshot]
	mutex        sync.Mutex
}

type ringSnapshot struct {
	fingerprint string
	positions   []uint64
	owners      map[uint64]*upstream.Target
}

func fingerprint(targets []*upstream.Target) string {
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID()
	}
	return strings.Join(ids, ",")
}

func buildRing(targets []*upstream.Target, vnodes int, fp string) *ringSnapshot {
	rs := &ringSnapshot{
		fingerprint: fp,
		positions:   make([]uint64, 0, len(targets)*vnodes),
		owners:      make(map[uint64]*upstream.Target, len(targets)*vnodes),
	}

	for _, t := range targets {
		for i := 0; i < vnodes; i++ {
			hash := xxhash.Sum64String(t.ID() + "#" + strconv.Itoa(i))
			if _, taken := rs.owners[hash]; taken {
				continue
			}
			rs.positions = append(rs.positions, hash)
			rs.owners[hash] = t
		}
	}

	sort.Slice(rs.positions, func(i, j int) bool { return rs.positions[i] < rs.positions[j] })
	return rs
}

func (r *ringSnapshot) lookup(hash uint64) *upstream.Target {
	if len(r.positions) == 0 {
		return nil
	}

	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})
	if idx == len(r.positions) {
		idx = 0
	}

	return r.owners[r.positions[idx]]
}

// ringFor returns a ring over exactly these targets, rebuilding it when the
// pool changed since the last call.
func (s *consistentHashStrategy) ringFor(targets []*upstream.Target) *ringSnapshot {
	fp := fingerprint(targets)
	if rs := s.ring.Load(); rs != nil && rs.fingerprint == fp {
		return rs
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if rs := s.ring.Load(); rs != nil && rs.fingerprint == fp {
		return rs
	}
	rs := buildRing(targets, s.virtualNodes, fp)
	s.ring.Store(rs)
	return rs
}

func (s *consistentHashStrategy) Pick(targets []*upstream.Target) *upstream.Target {
	return s.PickKey(targets, "")
}

func (s *consistentHashStrategy) PickKey(targets []*upstream.Target, key string) *upstream.Target {
	if len(targets) == 0 {
		return nil
	}
	return s.ringFor(targets).lookup(xxhash.Sum64String(key))
}

func NewConsistentHashStrategy(virtualNodes int) KeyedStrategy {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	return &consistentHashStrategy{virtualNodes: virtualNodes}
}
