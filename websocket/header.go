package websocket

import "strings"

// request is a parsed HTTP/1.1 request line plus headers, read directly
// off the raw TCP stream (no net/http involved). Header lookup is
// case-sensitive — a known simplification: RFC 7230 headers are
// case-insensitive, but real Upgrade clients send canonical casing
// ("Upgrade", "Connection", "Sec-WebSocket-Key", ...), so this codec
// does not normalize.
type request struct {
	method   string
	route    string
	protocol string
	headers  map[string]string
}

// header looks up a request header by its exact (case-sensitive) name.
func (r *request) header(name string) string {
	return r.headers[name]
}

// response is a status line plus headers, serialized back onto the raw
// TCP stream by writeResponse.
type response struct {
	protocol   string
	statusLine string // e.g. "101 Switching Protocols"
	headers    []headerField
}

// headerField preserves insertion order, since RFC 6455's required
// handshake response header ordering, while not mandated by the RFC,
// should be stable and predictable for test fixtures and packet
// captures.
type headerField struct {
	name  string
	value string
}

func (r *response) set(name, value string) {
	r.headers = append(r.headers, headerField{name, value})
}

// parseRequest parses a complete HTTP/1.1 request (start-line plus
// headers, terminated by the blank line the caller already consumed up
// to) per spec.md Section 4.3.
//
// The start-line is the first non-empty line, split on single spaces
// into exactly three fields: method, route, protocol. Every subsequent
// non-empty line is split on the first ": " separator into a header
// name/value pair. A line with no ": " separator is a hard parse
// error — the caller transitions the connection to Failed.
func parseRequest(buf []byte) (*request, error) {
	lines := strings.Split(string(buf), "\r\n")

	idx := 0
	for idx < len(lines) && lines[idx] == "" {
		idx++
	}
	if idx >= len(lines) {
		return nil, newError(KindHandshake, "parse request", ErrMalformedHeader)
	}

	startLine := strings.SplitN(lines[idx], " ", 3)
	if len(startLine) != 3 {
		return nil, newError(KindHandshake, "parse request start-line", ErrMalformedHeader)
	}

	req := &request{
		method:   startLine[0],
		route:    startLine[1],
		protocol: startLine[2],
		headers:  make(map[string]string),
	}

	for _, line := range lines[idx+1:] {
		if line == "" {
			continue
		}
		sep := strings.Index(line, ": ")
		if sep < 0 {
			return nil, newError(KindHandshake, "parse request header", ErrMalformedHeader)
		}
		req.headers[line[:sep]] = line[sep+2:]
	}

	return req, nil
}

// writeResponse serializes an HTTP/1.1 response: start-line, each
// header as "Name: value\r\n" in insertion order, and a terminal blank
// line. Per spec.md Section 4.3.
func writeResponse(resp *response) []byte {
	var b strings.Builder
	b.WriteString(resp.protocol)
	b.WriteByte(' ')
	b.WriteString(resp.statusLine)
	b.WriteString("\r\n")

	for _, h := range resp.headers {
		b.WriteString(h.name)
		b.WriteString(": ")
		b.WriteString(h.value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	return []byte(b.String())
}
