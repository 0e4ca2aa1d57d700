package eventloop

// connState is the per-connection lifecycle state.
type connState int

const (
	stateReading connState = iota
	stateDrainingRequest
	stateWriting
	stateClosed
)

// pendingResponse is one worker's completed response, held back from
// writeBuf until every earlier-dispatched request on the same connection
// has also completed, so pipelined responses are flushed in the order
// their requests were sent rather than in completion order.
type pendingResponse struct {
	resp      []byte
	keepAlive bool
}

// Connection holds the per-fd state the loop owns. readBuf is touched only
// from the loop goroutine; a worker hands its response back only through
// the loop's completeRequest path, which appends to writeBuf under the
// loop's mutex, and never writes to the socket itself.
//
// nextSeq is assigned to each request as it is framed off readBuf and
// handed to the worker pool; nextWrite is the sequence number the next
// write to writeBuf must carry. A worker finishing out of order parks its
// response in pending until the run of contiguous sequence numbers
// starting at nextWrite is complete, then every ready response is
// flushed to writeBuf in dispatch order.
type Connection struct {
	fd        int
	readBuf   []byte
	writeBuf  []byte
	keepAlive bool
	state     connState

	nextSeq   uint64
	nextWrite uint64
	pending   map[uint64]pendingResponse
}

// Handler processes one complete, framed request and returns the response
// bytes to write back. It always runs on the worker pool, never on the
// loop goroutine.
type Handler func(clientFd int, request []byte) []byte
