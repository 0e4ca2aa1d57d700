// Package ratelimiter implements the per-client sliding-window admission
// control described in the data model: a monotonic sequence of admitted
// request timestamps per client, pruned to the trailing one-second window,
// plus a lock-free telemetry ring recording every admission decision.
package ratelimiter

import (
	"sync"
	"time"

	"github.com/23skdu/ingestord/internal/concurrency"
	"github.com/23skdu/ingestord/internal/metrics"
)

const defaultShardCount = 257

// clientState holds one client's sliding window and telemetry ring. The
// window is guarded by the limiter's sharded mutex pool, keyed by client
// id; the ring is lock-free and needs no external synchronization.
type clientState struct {
	window []time.Time
	ring   Ring
}

// Limiter enforces an admission ceiling per client within a trailing
// one-second window.
//
// Deadlock avoidance: the enumeration lock (enumMu) guards only the
// clients map itself — insertion of new entries and iteration during
// flush. It is never held while a shard mutex is locked, and the shard
// mutex is never held while touching the enumeration lock, so the two
// cannot deadlock against each other.
type Limiter struct {
	ceiling int
	shards  *concurrency.ShardedMutex[string]

	enumMu  sync.RWMutex
	clients map[string]*clientState
}

// New creates a Limiter admitting up to ceiling requests per client per
// trailing second.
func New(ceiling int) *Limiter {
	return &Limiter{
		ceiling: ceiling,
		shards:  concurrency.NewShardedMutex[string](defaultShardCount),
		clients: make(map[string]*clientState),
	}
}

// lookup returns the client's state, creating it under the enumeration
// write lock if this is the first time the client has been seen.
func (l *Limiter) lookup(clientID string) *clientState {
	l.enumMu.RLock()
	cs, ok := l.clients[clientID]
	l.enumMu.RUnlock()
	if ok {
		return cs
	}

	l.enumMu.Lock()
	defer l.enumMu.Unlock()
	if cs, ok := l.clients[clientID]; ok {
		return cs
	}
	cs = &clientState{}
	l.clients[clientID] = cs
	return cs
}

// Allow reports whether clientID may proceed under its sliding window, and
// records the decision into that client's telemetry ring. The window is
// pruned of entries older than one second before the admission check, so
// the retained count always equals the number of admissions in the last
// full second, per the data model's invariant.
func (l *Limiter) Allow(clientID string) bool {
	now := time.Now()
	cs := l.lookup(clientID)

	l.shards.Lock(clientID)
	cutoff := now.Add(-time.Second)
	pruned := cs.window[:0]
	for _, ts := range cs.window {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	cs.window = pruned

	allowed := len(cs.window) < l.ceiling
	if allowed {
		cs.window = append(cs.window, now)
	}
	l.shards.Unlock(clientID)

	cs.ring.Push(TelemetryEvent{Timestamp: now, Allowed: allowed})
	return allowed
}

// FlushMetrics drains every known client's telemetry ring. It is meant to
// be called periodically from a single reader goroutine, matching the
// ring's single-reader contract; calling it concurrently from more than
// one goroutine is a misuse of the SPSC ring.
func (l *Limiter) FlushMetrics() []TelemetryEvent {
	l.enumMu.RLock()
	states := make([]*clientState, 0, len(l.clients))
	for _, cs := range l.clients {
		states = append(states, cs)
	}
	l.enumMu.RUnlock()

	var drained []TelemetryEvent
	for _, cs := range states {
		_, lost := cs.ring.Drain(&drained)
		if lost > 0 {
			metrics.RateLimiterRingDrops.Add(float64(lost))
		}
	}
	return drained
}
