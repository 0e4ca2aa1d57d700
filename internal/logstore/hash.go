package logstore

import "github.com/cespare/xxhash/v2"

// StableHash is the deterministic hash backing partition assignment:
// partition = StableHash(key) mod N. xxhash gives a stable, well-mixed
// 64-bit digest independent of Go's randomized map/string hashing. It is
// exported so the remote broker sink can assign the same key to the same
// partition index as the local log.
func StableHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

func stableHash(key string) uint64 {
	return StableHash(key)
}
