// Package concurrency holds lock and buffer primitives shared by the
// ingestion path: per-client sharded locking for the rate limiter and a
// pooled byte-buffer allocator for the event loop's read path.
package concurrency

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ShardedMutex hands out one of numShards independent RWMutexes per key,
// so unrelated keys (client ids, in practice) never contend on the same
// lock. Keys are comparable rather than arbitrary any, since the hash
// strategy below only has a fast path for the types the rate limiter and
// log partitioner actually key by; everything else falls back to a single
// shared shard.
type ShardedMutex[T comparable] struct {
	shards    []sync.RWMutex
	numShards uint64
}

func NewShardedMutex[T comparable](numShards int) *ShardedMutex[T] {
	if numShards < 1 {
		numShards = 16
	}

	return &ShardedMutex[T]{
		shards:    make([]sync.RWMutex, numShards),
		numShards: uint64(numShards),
	}
}

func (sm *ShardedMutex[T]) Lock(key T) {
	sm.shards[sm.shardIndex(key)].Lock()
}

func (sm *ShardedMutex[T]) Unlock(key T) {
	sm.shards[sm.shardIndex(key)].Unlock()
}

func (sm *ShardedMutex[T]) RLock(key T) {
	sm.shards[sm.shardIndex(key)].RLock()
}

func (sm *ShardedMutex[T]) RUnlock(key T) {
	sm.shards[sm.shardIndex(key)].RUnlock()
}

func (sm *ShardedMutex[T]) shardIndex(key T) uint64 {
	return sm.hash(key) % sm.numShards
}

// hash mirrors logstore.StableHash's choice of xxhash for strings, so the
// rate limiter's client-id sharding and the log's partition assignment use
// the same well-mixed, non-cryptographic hash family. Integer keys are
// mixed with a cheap 64-bit avalanche instead of used as raw shard
// indices, so sequential ids (partition numbers, small counters) don't all
// collapse onto shard 0..k.
func (sm *ShardedMutex[T]) hash(key T) uint64 {
	switch k := any(key).(type) {
	case string:
		return xxhash.Sum64String(k)
	case int:
		return mixUint64(uint64(k))
	case int32:
		return mixUint64(uint64(k))
	case int64:
		return mixUint64(uint64(k))
	case uint32:
		return mixUint64(uint64(k))
	case uint64:
		return mixUint64(k)
	default:
		return 0
	}
}

// mixUint64 is the 64-bit finalizer from splitmix64, used to spread
// small or sequential integer keys across shards.
func mixUint64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
