package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRequest_ExtractsMethodPathHeadersBody(t *testing.T) {
	raw := []byte("POST /metrics HTTP/1.1\r\nContent-Length: 5\r\nAuthorization: token-a\r\n\r\nhello")
	req := parseRequest(raw)

	require.Equal(t, "POST", req.method)
	require.Equal(t, "/metrics", req.path)
	require.Equal(t, "token-a", req.headers["Authorization"])
	require.Equal(t, "hello", string(req.body))
}

func TestParsedRequest_ClientIDFallsBackToDefault(t *testing.T) {
	req := parseRequest([]byte("GET /health HTTP/1.1\r\n\r\n"))
	require.Equal(t, "default", req.clientID())
}

func TestParsedRequest_ClientIDFromAuthorization(t *testing.T) {
	req := parseRequest([]byte("POST /metrics HTTP/1.1\r\nAuthorization: client-x\r\n\r\n"))
	require.Equal(t, "client-x", req.clientID())
}

func TestBuildResponse_IncludesContentLength(t *testing.T) {
	resp := buildResponse(200, "OK", []byte(`{"ok":true}`))
	require.Contains(t, string(resp), "HTTP/1.1 200 OK")
	require.Contains(t, string(resp), "Content-Length: 11")
	require.Contains(t, string(resp), `{"ok":true}`)
}
