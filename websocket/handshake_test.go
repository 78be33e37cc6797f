package websocket

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

// TestAcceptKey_RFCVector checks the worked example from RFC 6455
// Section 1.3, also named in spec.md Section 8.
func TestAcceptKey_RFCVector(t *testing.T) {
	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	const want = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="

	if got := acceptKey(key); got != want {
		t.Errorf("acceptKey(%q) = %q, want %q", key, got, want)
	}
}

func TestReadHandshakeRequest_StopsAtBlankLine(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: x\r\n\r\nTRAILING GARBAGE"
	r := bufio.NewReader(strings.NewReader(raw))

	got, err := readHandshakeRequest(r)
	if err != nil {
		t.Fatalf("readHandshakeRequest: %v", err)
	}
	if string(got) != "GET / HTTP/1.1\r\nHost: x\r\n\r\n" {
		t.Errorf("read %q, want request up to the blank line only", got)
	}
}

func TestValidateHandshake(t *testing.T) {
	base := func() *request {
		return &request{headers: map[string]string{
			"Upgrade":               "websocket",
			"Connection":            "keep-alive, Upgrade",
			"Sec-WebSocket-Version": "13",
			"Sec-WebSocket-Key":     "dGhlIHNhbXBsZSBub25jZQ==",
		}}
	}

	t.Run("valid", func(t *testing.T) {
		if err := validateHandshake(base()); err != nil {
			t.Errorf("validateHandshake: %v", err)
		}
	})

	t.Run("missing Upgrade", func(t *testing.T) {
		req := base()
		delete(req.headers, "Upgrade")
		if err := validateHandshake(req); !IsKind(err, KindHandshake) {
			t.Errorf("expected KindHandshake, got %v", err)
		}
	})

	t.Run("Connection missing Upgrade token", func(t *testing.T) {
		req := base()
		req.headers["Connection"] = "keep-alive"
		if err := validateHandshake(req); !IsKind(err, KindHandshake) {
			t.Errorf("expected KindHandshake, got %v", err)
		}
	})

	t.Run("wrong version", func(t *testing.T) {
		req := base()
		req.headers["Sec-WebSocket-Version"] = "8"
		if err := validateHandshake(req); !IsKind(err, KindHandshake) {
			t.Errorf("expected KindHandshake, got %v", err)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		req := base()
		delete(req.headers, "Sec-WebSocket-Key")
		if err := validateHandshake(req); !IsKind(err, KindHandshake) {
			t.Errorf("expected KindHandshake, got %v", err)
		}
	})
}

func TestHandshakeResponse_Format(t *testing.T) {
	resp := handshakeResponse("s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")
	out := string(writeResponse(resp))

	for _, want := range []string{
		"HTTP/1.1 101 Switching Protocols\r\n",
		"Upgrade: websocket\r\n",
		"Connection: Upgrade\r\n",
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("response missing %q:\n%s", want, out)
		}
	}
}

// TestConn_Handshake_EndToEnd drives Conn.Handshake over an in-memory
// pipe, the way the accept loop would over a real net.Conn.
func TestConn_Handshake_EndToEnd(t *testing.T) {
	client, server := netPipe(t)
	defer client.Close()
	defer server.Close()

	conn := New(server, nil)
	done := make(chan error, 1)
	go func() { done <- conn.Handshake() }()

	req := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("client write: %v", err)
	}

	resp := make([]byte, 4096)
	n, err := client.Read(resp)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if conn.State() != StateConnected {
		t.Errorf("state = %v, want Connected", conn.State())
	}
	if !bytes.Contains(resp[:n], []byte("101 Switching Protocols")) {
		t.Errorf("response = %q", resp[:n])
	}
	if !bytes.Contains(resp[:n], []byte("Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")) {
		t.Errorf("response missing correct accept key: %q", resp[:n])
	}
}
