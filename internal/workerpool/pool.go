// Package workerpool implements the bounded-worker, unbounded-queue pool
// that runs all CPU-bound request processing off the event loop thread.
package workerpool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/23skdu/ingestord/internal/metrics"
)

// DefaultWorkers is the default number of worker goroutines.
const DefaultWorkers = 16

// Task is a unit of work dispatched by the event loop.
type Task func()

// Pool runs Workers goroutines draining a FIFO task queue protected by a
// mutex and condition variable. The queue is deliberately unbounded:
// enqueue never blocks or rejects, and backpressure instead shows up as
// the kernel accept queue filling when workers can't keep up.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	running bool
	workers int
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates a Pool with the given number of workers (DefaultWorkers if
// workers <= 0) but does not start it.
func New(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	p := &Pool{
		workers: workers,
		logger:  logger,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && p.running {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && !p.running {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		metrics.WorkerPoolQueueDepth.Set(float64(len(p.queue)))
		p.mu.Unlock()

		task()
	}
}

// Enqueue appends task to the queue and wakes one waiting worker. It never
// blocks and never rejects.
func (p *Pool) Enqueue(task Task) {
	p.mu.Lock()
	p.queue = append(p.queue, task)
	metrics.WorkerPoolQueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()
	p.cond.Signal()
}

// Stop sets the running flag to false, wakes every waiting worker, and
// blocks until all workers have drained the remaining queue and exited.
// No per-task cancellation is offered; queued tasks still run to
// completion.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
	if p.logger != nil {
		p.logger.Info("worker pool stopped")
	}
}
