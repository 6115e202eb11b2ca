package ws

import (
	"time"

	"github.com/tiihttp/tii/internal/stream"
)

// Stream wraps an upgraded connection for sending and receiving whole
// WebSocket messages, grounded on websocket/stream.rs's WebsocketStream.
// Unlike the Rust original's Drop-based close-on-scope-exit, callers
// must call Close explicitly — Go has no destructor to hook.
type Stream struct {
	raw      stream.Stream
	closed   bool
	lastPong time.Time
}

// NewStream wraps an already-upgraded connection. Call this only after
// Handshake has succeeded.
func NewStream(raw stream.Stream) *Stream {
	return &Stream{raw: raw, lastPong: time.Now()}
}

// Recv blocks until a full message is available, automatically replying
// to pings and tracking the last pong seen.
func (s *Stream) Recv() (Message, error) {
	msg, err := readMessage(s.raw, func() { s.lastPong = time.Now() })
	if err == ErrConnectionClosed {
		s.closed = true
	}
	return msg, err
}

// LastPong returns the time of the last pong frame seen, for callers
// implementing their own ping-timeout liveness check (async_app.rs's
// ping/timeout loop).
func (s *Stream) LastPong() time.Time {
	return s.lastPong
}

// Send transmits m as a single frame.
func (s *Stream) Send(m Message) error {
	return WriteFrame(s.raw, m.ToFrame())
}

// Ping sends an empty ping frame.
func (s *Stream) Ping() error {
	return WriteFrame(s.raw, NewFrame(OpcodePing, nil))
}

// Close sends a close frame if one has not already been exchanged. Safe
// to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return WriteFrame(s.raw, NewFrame(OpcodeClose, nil))
}

// PeerAddr returns the remote address of the underlying connection.
func (s *Stream) PeerAddr() string {
	return s.raw.PeerAddr()
}

// SetReadTimeout bounds how long the next Recv call may block, letting a
// caller implement a heartbeat/idle-ping loop around reads the way
// websocket_broadcaster.rs's exec loop uses recv_timeout.
func (s *Stream) SetReadTimeout(d time.Duration) error {
	return s.raw.SetReadTimeout(d)
}

// Closed reports whether the peer's close frame has already been seen
// (or this side has already sent one).
func (s *Stream) Closed() bool {
	return s.closed
}
