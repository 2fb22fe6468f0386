// Package cache stores handler responses keyed by request.
//
// The Engine splits its capacity across shards selected by xxhash. Each shard
// holds an LRU list and a singleflight group, so concurrent misses on the same
// key run the computation once and every waiter receives the same result.
// Failed computations are never stored. Expiry is checked lazily on lookup
// and proactively by Sweep.
//
//	engine, _ := cache.New(cache.Options{MaxEntries: 1024})
//	resp, status, err := engine.GetOrCompute(ctx, key, 30*time.Second, compute)
package cache
