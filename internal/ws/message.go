package ws

import (
	"errors"
	"unicode/utf8"

	"github.com/tiihttp/tii/internal/stream"
)

// ErrConnectionClosed is returned by ReadMessage once the peer has sent
// a close frame; the close frame has already been echoed back by the
// time it is returned.
var ErrConnectionClosed = errors.New("ws: connection closed")

// Message is a reassembled WebSocket message: either text (payload is
// valid UTF-8 and the sender marked it as text) or binary.
type Message struct {
	Payload []byte
	Text    bool
}

// NewMessage builds a message, auto-detecting text vs. binary from
// whether payload is valid UTF-8 (mirrors Message::new).
func NewMessage(payload []byte) Message {
	return Message{Payload: payload, Text: utf8.Valid(payload)}
}

// NewBinaryMessage builds a message explicitly marked binary.
func NewBinaryMessage(payload []byte) Message {
	return Message{Payload: payload, Text: false}
}

// ReadMessage blocks until a complete message (one frame, or a sequence
// terminated by a fin frame) has been read off s. Pings are answered
// with a pong and otherwise ignored; pongs are silently dropped. A close
// frame is echoed back and reported as ErrConnectionClosed. A text
// message whose reassembled payload is not valid UTF-8 is an error.
func ReadMessage(s stream.Stream) (Message, error) {
	return readMessage(s, nil)
}

// readMessage is ReadMessage's implementation, additionally invoking
// onPong (if non-nil) whenever a pong frame arrives, so callers that
// track liveness (Stream.Recv) don't need their own frame loop.
func readMessage(s stream.Stream, onPong func()) (Message, error) {
	var payload []byte
	var first Opcode
	haveFirst := false

	for {
		frame, err := ReadFrame(s)
		if err != nil {
			return Message{}, err
		}

		switch frame.Opcode {
		case OpcodePing:
			if err := WriteFrame(s, NewFrame(OpcodePong, frame.Payload)); err != nil {
				return Message{}, err
			}
			continue
		case OpcodePong:
			if onPong != nil {
				onPong()
			}
			continue
		case OpcodeClose:
			WriteFrame(s, NewFrame(OpcodeClose, frame.Payload))
			return Message{}, ErrConnectionClosed
		}

		if !haveFirst {
			first = frame.Opcode
			haveFirst = true
		}
		payload = append(payload, frame.Payload...)

		if frame.Fin {
			if first == OpcodeText && !utf8.Valid(payload) {
				return Message{}, errors.New("ws: text message is not valid UTF-8")
			}
			return Message{Payload: payload, Text: first == OpcodeText}, nil
		}
	}
}

// ToFrame converts m to the single frame that carries it on the wire.
func (m Message) ToFrame() Frame {
	if m.Text {
		return NewFrame(OpcodeText, m.Payload)
	}
	return NewFrame(OpcodeBinary, m.Payload)
}
