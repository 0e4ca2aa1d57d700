package ratelimiter

import (
	"sync/atomic"
	"time"
)

// RingCapacity is the fixed size of each client's telemetry ring buffer, as
// pinned down by the data model.
const RingCapacity = 1000

// TelemetryEvent records one admission decision for later aggregation.
type TelemetryEvent struct {
	Timestamp time.Time
	Allowed   bool
}

// Ring is a single-producer/single-reader ring buffer of fixed capacity
// holding (timestamp, allowed) telemetry events. The producer is the
// request path calling Push on every admission decision; the single reader
// is the periodic flush loop calling Drain. Index arithmetic uses Go's
// atomics, which give sequential consistency — a strictly stronger
// guarantee than the release/acquire ordering the data model requires.
type Ring struct {
	buf        [RingCapacity]TelemetryEvent
	writeIndex atomic.Uint64
	readIndex  atomic.Uint64
}

// Push unconditionally records ev at write_index and advances it. Once the
// reader falls a full capacity behind, a push silently overwrites the
// oldest unread slot — a documented sampling loss, not an error — rather
// than rejecting the write.
func (r *Ring) Push(ev TelemetryEvent) {
	w := r.writeIndex.Load()
	r.buf[w%RingCapacity] = ev
	r.writeIndex.Store(w + 1)
}

// Drain appends every still-readable event to dest in order and advances
// the read index, returning the number drained and the number of older
// events that were silently overwritten since the last drain (0 unless
// the writer lapped the reader by more than a full capacity).
func (r *Ring) Drain(dest *[]TelemetryEvent) (drained int, lost int) {
	rd := r.readIndex.Load()
	w := r.writeIndex.Load()
	total := w - rd
	if total == 0 {
		return 0, 0
	}
	if total > RingCapacity {
		lost = int(total - RingCapacity)
		rd = w - RingCapacity
	}
	count := int(w - rd)
	for i := 0; i < count; i++ {
		*dest = append(*dest, r.buf[(rd+uint64(i))%RingCapacity])
	}
	r.readIndex.Store(w)
	return count, lost
}

// Len returns the number of unread events.
func (r *Ring) Len() int {
	return int(r.writeIndex.Load() - r.readIndex.Load())
}
