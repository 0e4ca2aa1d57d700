// Package writer implements the single background thread that drains
// accepted batches into the log sink, decoupling request handling from
// disk (or network) I/O.
package writer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/23skdu/ingestord/internal/breaker"
	ierrors "github.com/23skdu/ingestord/internal/errors"
	"github.com/23skdu/ingestord/internal/logstore"
	"github.com/23skdu/ingestord/internal/metrics"
)

// entry is one pending (batch, client_id) handoff.
type entry struct {
	clientID string
	message  []byte
}

// Writer serialises every accepted batch through one goroutine, which
// matches the partitioned log's per-partition locking granularity
// (multiple writer threads would just contend on the same partition
// mutexes) and preserves, for a given client, the order in which its
// requests were admitted.
type Writer struct {
	sinkName string
	sink     logstore.Sink
	breaker  *breaker.CircuitBreaker
	logger   *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []entry
	running bool
	wg      sync.WaitGroup
}

// New creates a Writer over sink, wrapping every Produce call in a circuit
// breaker so a failing remote broker degrades instead of backing up the
// queue indefinitely.
func New(sinkName string, sink logstore.Sink, logger *zap.Logger) *Writer {
	w := &Writer{
		sinkName: sinkName,
		sink:     sink,
		logger:   logger,
	}
	w.cond = sync.NewCond(&w.mu)
	w.breaker = breaker.NewCircuitBreaker(breaker.Settings{
		Name:        "writer_sink_" + sinkName,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(c breaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to breaker.State) {
			metrics.CircuitBreakerState.Set(float64(to))
			if logger != nil {
				logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.Int("from", int(from)),
					zap.Int("to", int(to)))
			}
		},
	})
	return w
}

// Start launches the single writer goroutine.
func (w *Writer) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run()
}

// Enqueue hands a batch's encoded message to the writer, keyed by client
// id for partition routing. It always succeeds and wakes the writer.
func (w *Writer) Enqueue(clientID string, message []byte) {
	w.mu.Lock()
	w.queue = append(w.queue, entry{clientID: clientID, message: message})
	metrics.WriterQueueDepth.Set(float64(len(w.queue)))
	w.mu.Unlock()
	w.cond.Signal()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && w.running {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && !w.running {
			w.mu.Unlock()
			return
		}
		pending := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, e := range pending {
			w.write(e)
		}
	}
}

func (w *Writer) write(e entry) {
	start := time.Now()
	_, err := w.breaker.Execute(func() (any, error) {
		_, offset, err := w.sink.Produce(e.clientID, e.message)
		return offset, err
	})
	metrics.SinkWriteDuration.WithLabelValues(w.sinkName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SinkWriteFailures.WithLabelValues(w.sinkName).Inc()
		if w.logger != nil {
			structured := ierrors.WrapStorageError(err, "sink.Produce", "failed to persist batch").
				WithContext(ierrors.ContextSink, w.sinkName).
				WithContext(ierrors.ContextClientID, e.clientID).
				WithContext(ierrors.ContextMessageBytes, len(e.message))
			w.logger.Error("sink produce failed", zap.Error(structured))
		}
	}
}

// Depth returns the current queue depth, used by health.QueueDepthChecker.
func (w *Writer) Depth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Stop signals the writer to exit after draining the remaining queue.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.cond.Broadcast()
	w.wg.Wait()
}
