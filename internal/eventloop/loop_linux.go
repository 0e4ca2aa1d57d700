//go:build linux

package eventloop

import (
	"errors"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/23skdu/ingestord/internal/concurrency"
	"github.com/23skdu/ingestord/internal/metrics"
	"github.com/23skdu/ingestord/internal/workerpool"
)

const maxEpollEvents = 256

// epollLoop is the Linux readiness mechanism: one epoll instance shared by
// the listen socket and every accepted client socket, driven by a single
// goroutine. Worker goroutines reach a connection only through
// completeRequest, so the conns map and each connection's write state are
// guarded by mu.
type epollLoop struct {
	epfd     int
	listenFD int
	pool     *workerpool.Pool
	bufPool  *concurrency.BufferPool

	mu    sync.Mutex
	conns map[int]*Connection

	stop chan struct{}
	done chan struct{}
}

func newPlatformLoop(pool *workerpool.Pool) Loop {
	return &epollLoop{
		pool:    pool,
		bufPool: concurrency.NewBufferPool(),
		conns:   make(map[int]*Connection),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func rawFD(ln net.Listener) (int, error) {
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return 0, errors.New("eventloop: listener is not a *net.TCPListener")
	}
	sc, err := tl.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctlErr := sc.Control(func(f uintptr) {
		fd = int(f)
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	dup, err := unix.Dup(fd)
	if err != nil {
		return 0, err
	}
	return dup, nil
}

func (l *epollLoop) Run(ln net.Listener, handler Handler) error {
	fd, err := rawFD(ln)
	if err != nil {
		return err
	}
	l.listenFD = fd

	if err := unix.SetNonblock(l.listenFD, true); err != nil {
		return err
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return err
	}
	l.epfd = epfd

	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, l.listenFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(l.listenFD),
	}); err != nil {
		return err
	}

	defer close(l.done)
	defer unix.Close(l.epfd)

	events := make([]unix.EpollEvent, maxEpollEvents)
	for {
		select {
		case <-l.stop:
			l.closeAll()
			return nil
		default:
		}

		n, err := unix.EpollWait(l.epfd, events, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)

			if fd == l.listenFD {
				l.acceptAll()
				continue
			}

			if ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				l.closeConn(fd)
				continue
			}
			if ev.Events&unix.EPOLLIN != 0 {
				l.handleRead(fd, handler)
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				l.handleWrite(fd)
			}
		}
	}
}

// acceptAll drains the accept queue until accept would block, per the
// framing contract's polling-tick rule.
func (l *epollLoop) acceptAll() {
	for {
		connFD, _, err := unix.Accept4(l.listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			return
		}

		if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, connFD, &unix.EpollEvent{
			Events: unix.EPOLLIN | unix.EPOLLET,
			Fd:     int32(connFD),
		}); err != nil {
			unix.Close(connFD)
			continue
		}

		l.mu.Lock()
		l.conns[connFD] = &Connection{fd: connFD, state: stateReading}
		l.mu.Unlock()
		metrics.EventLoopConnections.Inc()
	}
}

func (l *epollLoop) handleRead(fd int, handler Handler) {
	l.mu.Lock()
	conn, ok := l.conns[fd]
	l.mu.Unlock()
	if !ok {
		return
	}

	bb := l.bufPool.Get()
	bb.Grow(65536)
	scratch := bb.Bytes()[:65536:65536]
	for {
		n, err := unix.Read(fd, scratch)
		if n > 0 {
			conn.readBuf = append(conn.readBuf, scratch[:n]...)
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				break
			}
			l.bufPool.Put(bb)
			l.closeConn(fd)
			return
		}
		if n == 0 {
			l.bufPool.Put(bb)
			l.closeConn(fd)
			return
		}
	}
	l.bufPool.Put(bb)

	for {
		r := frame(conn.readBuf)
		if !r.complete {
			return
		}
		request := make([]byte, r.end)
		copy(request, conn.readBuf[:r.end])
		conn.readBuf = conn.readBuf[r.end:]
		conn.state = stateDrainingRequest

		seq := conn.nextSeq
		conn.nextSeq++
		keepAlive := r.keepAlive

		l.pool.Enqueue(func() {
			resp := handler(fd, request)
			l.completeRequest(fd, seq, resp, keepAlive)
		})
	}
}

// completeRequest hands a worker's finished response back to the
// connection's pending set. It only ever touches conn.writeBuf under
// l.mu and arms the EPOLLOUT readiness edge — it never calls unix.Write
// itself. The actual write syscall happens exclusively on the Run
// goroutine's handleWrite, once epoll reports the fd writable, so two
// goroutines can never race on the same fd's write path. Because workers
// run concurrently, request N+1 may finish before request N; the
// response is parked in conn.pending until every lower sequence number
// has flushed, so writeBuf only ever grows in dispatch order.
func (l *epollLoop) completeRequest(fd int, seq uint64, resp []byte, keepAlive bool) {
	l.mu.Lock()
	conn, ok := l.conns[fd]
	if !ok {
		l.mu.Unlock()
		return
	}

	if conn.pending == nil {
		conn.pending = make(map[uint64]pendingResponse)
	}
	conn.pending[seq] = pendingResponse{resp: resp, keepAlive: keepAlive}

	for {
		pr, ready := conn.pending[conn.nextWrite]
		if !ready {
			break
		}
		delete(conn.pending, conn.nextWrite)
		conn.writeBuf = append(conn.writeBuf, pr.resp...)
		conn.keepAlive = pr.keepAlive
		conn.nextWrite++
	}
	conn.state = stateWriting
	hasData := len(conn.writeBuf) > 0
	l.mu.Unlock()

	// While an earlier-dispatched response is still outstanding nothing has
	// been flushed, so EPOLLOUT is not armed: handleWrite would otherwise
	// see an empty writeBuf and a keepAlive flag not yet set by any
	// response, and close the connection.
	if !hasData {
		return
	}

	// A MOD that adds EPOLLOUT on an already-writable fd still delivers
	// an edge on the next epoll_wait, even if Run is currently blocked
	// inside the syscall, so no notification is missed.
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET,
		Fd:     int32(fd),
	})
}

// handleWrite performs the fd's write syscall. It is only ever called
// from the Run goroutine (on the initial EPOLLOUT edge), never from a
// worker, so conn.writeBuf's producer (completeRequest, under l.mu) and
// its sole consumer never run concurrently on the same connection.
func (l *epollLoop) handleWrite(fd int) {
	l.mu.Lock()
	conn, ok := l.conns[fd]
	if !ok {
		l.mu.Unlock()
		return
	}

	for len(conn.writeBuf) > 0 {
		n, err := unix.Write(fd, conn.writeBuf)
		if n > 0 {
			conn.writeBuf = conn.writeBuf[n:]
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			l.closeConn(fd)
			return
		}
	}

	keepAlive := conn.keepAlive
	if keepAlive {
		conn.state = stateReading
	}
	l.mu.Unlock()

	if keepAlive {
		unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
			Events: unix.EPOLLIN | unix.EPOLLET,
			Fd:     int32(fd),
		})
	} else {
		l.closeConn(fd)
	}
}

func (l *epollLoop) closeConn(fd int) {
	l.mu.Lock()
	_, ok := l.conns[fd]
	delete(l.conns, fd)
	l.mu.Unlock()
	if !ok {
		return
	}
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	unix.Close(fd)
	metrics.EventLoopConnections.Dec()
}

func (l *epollLoop) closeAll() {
	l.mu.Lock()
	fds := make([]int, 0, len(l.conns))
	for fd := range l.conns {
		fds = append(fds, fd)
	}
	l.mu.Unlock()
	for _, fd := range fds {
		l.closeConn(fd)
	}
	unix.Close(l.listenFD)
}

// Stop is idempotent for sequential calls: a later call finds the stop
// channel already closed and returns at once instead of closing it again.
func (l *epollLoop) Stop() {
	select {
	case <-l.stop:
		return
	default:
		close(l.stop)
	}
	<-l.done
}
