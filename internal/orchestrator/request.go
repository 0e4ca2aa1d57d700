package orchestrator

import (
	"bytes"
	"strings"
)

// parsedRequest is the minimal decomposition of a framed HTTP/1.1 request
// the orchestrator needs: method, path, headers, and body. Anything else
// about HTTP framing is the event loop's concern, not this package's.
type parsedRequest struct {
	method  string
	path    string
	headers map[string]string
	body    []byte
}

func parseRequest(raw []byte) parsedRequest {
	headerEnd := bytes.Index(raw, []byte("\r\n\r\n"))
	var headerBlock, body []byte
	if headerEnd < 0 {
		headerBlock = raw
	} else {
		headerBlock = raw[:headerEnd]
		body = raw[headerEnd+4:]
	}

	lines := bytes.Split(headerBlock, []byte("\r\n"))
	pr := parsedRequest{headers: map[string]string{}, body: body}
	if len(lines) > 0 {
		parts := strings.Fields(string(lines[0]))
		if len(parts) >= 2 {
			pr.method = parts[0]
			pr.path = parts[1]
		}
	}
	for _, line := range lines[1:] {
		idx := bytes.Index(line, []byte(": "))
		if idx < 0 {
			continue
		}
		name := string(line[:idx])
		value := string(line[idx+2:])
		pr.headers[name] = value
	}
	return pr
}

// clientID extracts the routing/rate-limit key from the Authorization
// header, falling back to "default" when absent.
func (r parsedRequest) clientID() string {
	if v, ok := r.headers["Authorization"]; ok && v != "" {
		return v
	}
	return "default"
}

func buildResponse(status int, statusText string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(itoa(status))
	buf.WriteByte(' ')
	buf.WriteString(statusText)
	buf.WriteString("\r\nContent-Type: application/json\r\nContent-Length: ")
	buf.WriteString(itoa(len(body)))
	buf.WriteString("\r\n\r\n")
	buf.Write(body)
	return buf.Bytes()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
