package eventloop

import (
	"bytes"
	"strconv"
)

const headerTerminator = "\r\n\r\n"

// frameResult describes whether buf currently holds one complete request
// and, if so, where it ends.
type frameResult struct {
	complete  bool
	end       int
	keepAlive bool
}

// frame looks for a complete HTTP/1.1 request in buf: headers terminated
// by \r\n\r\n, plus body bytes per a Content-Length header if present.
// Content-Length and Connection are matched case-sensitively, matching
// this service's minimal parser rather than a fully compliant HTTP
// implementation — see the framing note on header casing.
func frame(buf []byte) frameResult {
	idx := bytes.Index(buf, []byte(headerTerminator))
	if idx < 0 {
		return frameResult{}
	}
	headerEnd := idx + len(headerTerminator)
	headers := buf[:idx]

	keepAlive := bytes.Contains(headers, []byte("Connection: keep-alive"))

	contentLength := 0
	if cl := extractHeader(headers, "Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err == nil && n >= 0 {
			contentLength = n
		}
	}

	total := headerEnd + contentLength
	if len(buf) < total {
		return frameResult{}
	}
	return frameResult{complete: true, end: total, keepAlive: keepAlive}
}

// extractHeader returns the value of a header line formatted
// "<name>: <value>\r\n", matched case-sensitively against name.
func extractHeader(headers []byte, name string) string {
	lines := bytes.Split(headers, []byte("\r\n"))
	prefix := []byte(name + ": ")
	for _, line := range lines {
		if bytes.HasPrefix(line, prefix) {
			return string(bytes.TrimSpace(line[len(prefix):]))
		}
	}
	return ""
}
