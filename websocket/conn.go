package websocket

import (
	"bufio"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxPayloadSize is the maximum frame payload size applied when
// Options.MaxPayloadSize is left at zero (spec.md Section 3).
const DefaultMaxPayloadSize = 16 << 20 // 16 MiB

// Frame is a single parsed RFC 6455 frame, returned to the application
// by Conn.Receive. Receive delivers frames individually and performs no
// fragmentation reassembly or ping/pong dispatch — that is left to the
// caller (spec.md Section 9's Open Questions; also listed among the
// out-of-scope external collaborators in Section 1).
type Frame struct {
	FIN     bool
	Opcode  byte
	Payload []byte
}

// IsText reports whether the frame carries a Text data message.
func (f Frame) IsText() bool { return f.Opcode == opcodeText }

// IsBinary reports whether the frame carries a Binary data message.
func (f Frame) IsBinary() bool { return f.Opcode == opcodeBinary }

// IsClose reports whether the frame is a Close control frame.
func (f Frame) IsClose() bool { return f.Opcode == opcodeClose }

// IsPing reports whether the frame is a Ping control frame.
func (f Frame) IsPing() bool { return f.Opcode == opcodePing }

// IsPong reports whether the frame is a Pong control frame.
func (f Frame) IsPong() bool { return f.Opcode == opcodePong }

// CloseCode extracts the status code from a Close frame's payload, or
// CloseNoStatusReceived if the payload is shorter than 2 bytes
// (RFC 6455 Section 7.1.5).
func (f Frame) CloseCode() CloseCode {
	if len(f.Payload) < 2 {
		return CloseNoStatusReceived
	}
	return CloseCode(uint16(f.Payload[0])<<8 | uint16(f.Payload[1]))
}

// Options configures a Conn. The zero value is valid: MaxPayloadSize
// defaults to DefaultMaxPayloadSize and Logger defaults to the global
// zerolog logger.
type Options struct {
	// MaxPayloadSize bounds a single frame's payload_length; frames
	// over this size fail Receive with ErrOversizedPayload. Zero means
	// DefaultMaxPayloadSize.
	MaxPayloadSize uint64

	// Logger receives structured lifecycle events (handshake, state
	// transitions, close). A nil Logger falls back to zerolog's global
	// logger.
	Logger *zerolog.Logger
}

// Conn is one connection context: a socket, its buffered reader/writer,
// and the lifecycle state machine (spec.md Section 3). One worker owns
// the socket for the connection's lifetime and is the sole caller of
// Receive (spec.md Section 5); Send*/Close may additionally be called
// from another goroutine, e.g. a keep-alive ticker running alongside
// the receive loop — writeMu serializes those against each other and
// against the receive loop's own replies.
type Conn struct {
	id  uuid.UUID
	net net.Conn

	reader *bufio.Reader
	writer *bufio.Writer

	maxPayloadSize uint64
	log            zerolog.Logger

	mu        sync.Mutex
	state     ConnectionState
	closeOnce sync.Once

	// writeMu serializes writes to writer: a server may originate
	// frames from more than one goroutine (e.g. a keep-alive ping
	// ticker running alongside the receive loop's replies), and
	// bufio.Writer is not safe for concurrent use on its own.
	writeMu sync.Mutex
}

// New wraps netConn in a Conn in the NeedHandshake state. opts may be
// nil, in which case defaults apply. This is the `new(stream,
// max_payload_size?)` constructor from spec.md Section 6.
func New(netConn net.Conn, opts *Options) *Conn {
	maxPayloadSize := uint64(DefaultMaxPayloadSize)
	logger := log.Logger
	if opts != nil {
		if opts.MaxPayloadSize > 0 {
			maxPayloadSize = opts.MaxPayloadSize
		}
		if opts.Logger != nil {
			logger = *opts.Logger
		}
	}

	id := uuid.New()
	return &Conn{
		id:             id,
		net:            netConn,
		reader:         bufio.NewReader(netConn),
		writer:         bufio.NewWriter(netConn),
		maxPayloadSize: maxPayloadSize,
		log:            logger.With().Str("conn_id", id.String()).Logger(),
		state:          StateNeedHandshake,
	}
}

// ID returns the connection's unique identifier, assigned at
// construction for log correlation.
func (c *Conn) ID() uuid.UUID { return c.id }

// State returns the connection's current lifecycle state.
func (c *Conn) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState validates and applies a state transition, logging both
// legal and illegal attempts.
func (c *Conn) setState(to ConnectionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := transition(c.state, to); err != nil {
		c.log.Error().Stringer("from", c.state).Stringer("to", to).Msg("illegal state transition")
		return err
	}
	c.log.Debug().Stringer("from", c.state).Stringer("to", to).Msg("state transition")
	c.state = to
	return nil
}

// requireConnected reports an error if the connection isn't in
// StateConnected: ErrClosed if it already reached a terminal state,
// ErrInvalidState otherwise (e.g. called before Handshake).
func (c *Conn) requireConnected(op string) error {
	switch state := c.State(); state {
	case StateConnected:
		return nil
	case StateClosed, StateFailed:
		return newError(KindInvalidState, op, ErrClosed)
	default:
		return newError(KindInvalidState, op, ErrInvalidState)
	}
}

// fail transitions the connection to Failed and closes the socket,
// per spec.md Section 4.5 step 5 and Section 7's error propagation
// rule: the worker owning this Conn is expected to see the returned
// error and stop calling it.
func (c *Conn) fail(cause error) error {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()

	c.log.Warn().Err(cause).Msg("connection failed")
	_ = c.net.Close()
	return cause
}

// Handshake drives the opening HTTP Upgrade handshake (spec.md Section
// 4.5): read the request, validate it, derive Sec-WebSocket-Accept,
// and write the 101 response. Must be called exactly once, from
// NeedHandshake.
func (c *Conn) Handshake() error {
	if err := c.setState(StateMidHandshake); err != nil {
		return err
	}

	raw, err := readHandshakeRequest(c.reader)
	if err != nil {
		return c.fail(err)
	}

	req, err := parseRequest(raw)
	if err != nil {
		return c.fail(err)
	}

	if err := validateHandshake(req); err != nil {
		return c.fail(err)
	}

	accept := acceptKey(req.header("Sec-WebSocket-Key"))
	resp := handshakeResponse(accept)

	if _, err := c.writer.Write(writeResponse(resp)); err != nil {
		return c.fail(newError(KindIO, "write handshake response", err))
	}
	if err := c.writer.Flush(); err != nil {
		return c.fail(newError(KindIO, "flush handshake response", err))
	}

	if err := c.setState(StateConnected); err != nil {
		return c.fail(err)
	}

	c.log.Info().Str("route", req.route).Msg("handshake complete")
	return nil
}

// Receive reads and returns the next frame (spec.md Section 4.4). It
// requires the connection to be Connected; calling it any earlier
// reports ErrInvalidState. A Close frame transitions the connection to
// Closed before being returned, so the caller sees the frame and can
// inspect its close code.
func (c *Conn) Receive() (Frame, error) {
	if err := c.requireConnected("receive"); err != nil {
		return Frame{}, err
	}

	f, err := readFrame(c.reader, c.maxPayloadSize)
	if err != nil {
		return Frame{}, c.fail(err)
	}

	out := Frame{FIN: f.fin, Opcode: f.opcode, Payload: f.payload}
	c.log.Debug().Str("opcode", opcodeName(out.Opcode)).Int("payload_len", len(out.Payload)).Msg("frame received")

	if out.IsClose() {
		if err := c.setState(StateClosed); err != nil {
			return Frame{}, c.fail(err)
		}
		_ = c.net.Close()
		c.log.Info().Uint16("code", uint16(out.CloseCode())).Msg("close frame received")
	}

	return out, nil
}

// SendText writes s as a single, unmasked, final Text frame (spec.md
// Section 4.4's text_frame helper). Requires Connected.
func (c *Conn) SendText(s string) error {
	if err := c.requireConnected("send text"); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(c.writer, textFrame(s)); err != nil {
		return c.fail(err)
	}
	return nil
}

// SendPong writes echo as a single, unmasked, final Pong frame
// (spec.md Section 4.4's pong_frame helper). Requires Connected; echo
// must be at most 125 bytes per RFC 6455 Section 5.5.
func (c *Conn) SendPong(echo []byte) error {
	if err := c.requireConnected("send pong"); err != nil {
		return err
	}
	if len(echo) > maxControlPayload {
		return newError(KindProtocol, "send pong", ErrControlTooLarge)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(c.writer, pongFrame(echo)); err != nil {
		return c.fail(err)
	}
	return nil
}

// SendPing writes data as a single, unmasked, final Ping frame. Not
// part of spec.md Section 6's minimal API surface (which only names
// send_text/send_pong), but a server that wants to initiate its own
// keep-alive needs some way to send one; kept symmetric with SendPong.
// Requires Connected; data must be at most 125 bytes.
func (c *Conn) SendPing(data []byte) error {
	if err := c.requireConnected("send ping"); err != nil {
		return err
	}
	if len(data) > maxControlPayload {
		return newError(KindProtocol, "send ping", ErrControlTooLarge)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(c.writer, pingFrame(data)); err != nil {
		return c.fail(err)
	}
	return nil
}

// Close sends a Close frame and closes the socket. It is legal from
// any state (spec.md Section 4.6's "Any -> Closed" rule) and
// idempotent: the second and later calls are no-ops. code is optional;
// passing none omits the status code from the frame payload.
func (c *Conn) Close(code ...uint16) error {
	var sendErr error

	c.closeOnce.Do(func() {
		var statusCode uint16
		if len(code) > 0 {
			statusCode = code[0]
		}

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		c.writeMu.Lock()
		writeErr := writeFrame(c.writer, closeFrame(statusCode))
		c.writeMu.Unlock()
		if writeErr != nil {
			sendErr = newError(KindIO, "write close frame", writeErr)
		}
		_ = c.net.Close()
		c.log.Info().Uint16("code", statusCode).Msg("connection closed")
	})

	return sendErr
}
