// Package eventloop implements the non-blocking accept/read/write loop
// that decouples connection handling from request processing. The
// readiness mechanism is platform-specific: Linux uses epoll
// (loop_linux.go), everything else falls back to a portable
// goroutine-per-connection implementation (loop_other.go) that honors the
// same run/stop contract without true single-threaded readiness polling.
package eventloop

import (
	"net"
	"time"

	"github.com/23skdu/ingestord/internal/workerpool"
)

// pollTimeout bounds how long a readiness wait blocks, so Stop is
// responsive within one tick.
const pollTimeout = 100 * time.Millisecond

// Loop runs a listening socket's accept/read/write cycle, dispatching
// framed requests to a worker pool and writing back whatever bytes the
// handler returns.
type Loop interface {
	// Run takes ownership of ln and drives the loop until Stop is
	// called. handler always executes on the worker pool.
	Run(ln net.Listener, handler Handler) error
	// Stop is idempotent; it causes Run to return within one polling
	// tick and closes every tracked connection.
	Stop()
}

// New builds the platform-appropriate Loop.
func New(pool *workerpool.Pool) Loop {
	return newPlatformLoop(pool)
}
