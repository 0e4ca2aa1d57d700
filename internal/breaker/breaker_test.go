package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// produceFailure and produceSuccess stand in for a sink's Produce call
// in these tests, since the breaker itself knows nothing about what it
// wraps.
func produceFailure() (interface{}, error) { return nil, assert.AnError }
func produceSuccess() (interface{}, error) { return uint64(1), nil }

func TestCircuitBreaker_OpensAfterConsecutiveSinkFailuresThenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "writer_sink_test",
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
		Timeout:     100 * time.Millisecond,
	})

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	// First failed Produce keeps the breaker closed.
	_, _ = cb.Execute(produceFailure)
	assert.Equal(t, StateClosed, cb.State())

	// Second consecutive failure trips it open.
	_, _ = cb.Execute(produceFailure)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(150 * time.Millisecond)

	// Cooldown elapsed: the next State() call observes Half-Open.
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	// A successful probe in Half-Open closes the breaker again.
	_, _ = cb.Execute(produceSuccess)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "writer_sink_test",
		MaxRequests: 1,
		ReadyToTrip: func(counts Counts) bool { return true },
		Timeout:     10 * time.Millisecond,
	})

	_, _ = cb.Execute(produceFailure)
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// The lone probe request is allowed through.
	assert.True(t, cb.Allow())

	// Simulate that probe being in flight without resolving it yet.
	cb.mutex.Lock()
	cb.counts.Requests = 1
	cb.mutex.Unlock()

	// A second concurrent caller is denied until the probe resolves.
	assert.False(t, cb.Allow())
}
