//go:build !linux

package eventloop

import (
	"net"
	"sync"

	"github.com/23skdu/ingestord/internal/concurrency"
	"github.com/23skdu/ingestord/internal/metrics"
	"github.com/23skdu/ingestord/internal/workerpool"
)

// fallbackLoop honors the same Run/Stop contract on platforms without
// epoll by running one goroutine per connection instead of a single
// readiness-polling thread. It is not a non-blocking readiness loop in
// the systems-programming sense, but it satisfies the observable
// contract: framed dispatch to the worker pool, write-back through the
// loop, keep-alive driven connection reuse.
type fallbackLoop struct {
	pool    *workerpool.Pool
	bufPool *concurrency.BufferPool

	mu    sync.Mutex
	conns map[net.Conn]*Connection

	closing bool
	ln      net.Listener
	wg      sync.WaitGroup
}

func newPlatformLoop(pool *workerpool.Pool) Loop {
	return &fallbackLoop{
		pool:    pool,
		bufPool: concurrency.NewBufferPool(),
		conns:   make(map[net.Conn]*Connection),
	}
}

func (l *fallbackLoop) Run(ln net.Listener, handler Handler) error {
	l.ln = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			l.mu.Lock()
			closing := l.closing
			l.mu.Unlock()
			if closing {
				l.wg.Wait()
				return nil
			}
			continue
		}

		l.mu.Lock()
		l.conns[conn] = &Connection{state: stateReading}
		l.mu.Unlock()
		metrics.EventLoopConnections.Inc()

		l.wg.Add(1)
		go l.serve(conn, handler)
	}
}

func (l *fallbackLoop) serve(conn net.Conn, handler Handler) {
	defer l.wg.Done()
	defer l.closeConn(conn)

	bb := l.bufPool.Get()
	defer l.bufPool.Put(bb)
	bb.Grow(65536)
	scratch := bb.Bytes()[:65536:65536]

	var readBuf []byte
	for {
		n, err := conn.Read(scratch)
		if n > 0 {
			readBuf = append(readBuf, scratch[:n]...)
		}
		if err != nil {
			return
		}

		for {
			r := frame(readBuf)
			if !r.complete {
				break
			}
			request := make([]byte, r.end)
			copy(request, readBuf[:r.end])
			readBuf = readBuf[r.end:]

			done := make(chan []byte, 1)
			l.pool.Enqueue(func() {
				done <- handler(0, request)
			})
			resp := <-done

			if _, err := conn.Write(resp); err != nil {
				return
			}
			if !r.keepAlive {
				return
			}
		}
	}
}

func (l *fallbackLoop) closeConn(conn net.Conn) {
	l.mu.Lock()
	_, ok := l.conns[conn]
	delete(l.conns, conn)
	l.mu.Unlock()
	if ok {
		conn.Close()
		metrics.EventLoopConnections.Dec()
	}
}

func (l *fallbackLoop) Stop() {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.closing = true
	conns := make([]net.Conn, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	if l.ln != nil {
		l.ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
}
