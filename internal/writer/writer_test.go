package writer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	mu       sync.Mutex
	produced []string
	fail     bool
}

func (f *fakeSink) Produce(key string, message []byte) (int, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, 0, assertError{}
	}
	f.produced = append(f.produced, key)
	return 0, uint64(len(f.produced)), nil
}

type assertError struct{}

func (assertError) Error() string { return "sink failure" }

func TestWriter_DrainsEnqueuedBatches(t *testing.T) {
	sink := &fakeSink{}
	w := New("test", sink, zap.NewNop())
	w.Start()

	for i := 0; i < 10; i++ {
		w.Enqueue("client", []byte("msg"))
	}

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.produced) == 10
	}, time.Second, 10*time.Millisecond)

	w.Stop()
}

func TestWriter_StopDrainsPending(t *testing.T) {
	sink := &fakeSink{}
	w := New("test", sink, zap.NewNop())
	w.Start()
	w.Enqueue("client", []byte("msg"))
	w.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.produced, 1)
}

func TestWriter_DepthReflectsQueue(t *testing.T) {
	sink := &fakeSink{}
	w := New("test", sink, zap.NewNop())
	w.Enqueue("client", []byte("msg"))
	require.Equal(t, 1, w.Depth())
}
