package eventloop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrame_IncompleteHeaders(t *testing.T) {
	r := frame([]byte("POST /metrics HTTP/1.1\r\nContent-Length: 5"))
	require.False(t, r.complete)
}

func TestFrame_CompleteWithBody(t *testing.T) {
	req := []byte("POST /metrics HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	r := frame(req)
	require.True(t, r.complete)
	require.Equal(t, len(req), r.end)
}

func TestFrame_WaitsForFullBody(t *testing.T) {
	req := []byte("POST /metrics HTTP/1.1\r\nContent-Length: 10\r\n\r\nhello")
	r := frame(req)
	require.False(t, r.complete)
}

func TestFrame_KeepAliveDetected(t *testing.T) {
	req := []byte("POST /metrics HTTP/1.1\r\nContent-Length: 0\r\nConnection: keep-alive\r\n\r\n")
	r := frame(req)
	require.True(t, r.complete)
	require.True(t, r.keepAlive)
}

func TestFrame_NoKeepAliveByDefault(t *testing.T) {
	req := []byte("POST /metrics HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	r := frame(req)
	require.True(t, r.complete)
	require.False(t, r.keepAlive)
}

func TestFrame_ExtraBytesNotConsumed(t *testing.T) {
	req := []byte("POST /metrics HTTP/1.1\r\nContent-Length: 2\r\n\r\nhiEXTRA")
	r := frame(req)
	require.True(t, r.complete)
	require.Equal(t, len("POST /metrics HTTP/1.1\r\nContent-Length: 2\r\n\r\nhi"), r.end)
}

func TestFrame_CaseSensitiveHeaderName(t *testing.T) {
	req := []byte("POST /metrics HTTP/1.1\r\ncontent-length: 5\r\n\r\nhello")
	r := frame(req)
	// lowercase header name is not matched, per the documented
	// case-sensitive framing behaviour: no Content-Length means no body
	// is expected, so headers-only is already "complete".
	require.True(t, r.complete)
	require.Equal(t, len("POST /metrics HTTP/1.1\r\ncontent-length: 5\r\n\r\n"), r.end)
}
