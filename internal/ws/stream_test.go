package ws

import (
	"testing"

	"github.com/tiihttp/tii/internal/stream"
)

func TestStreamSendRecvRoundTrip(t *testing.T) {
	leftRaw, rightRaw := stream.NewLoopbackPair()
	left := NewStream(leftRaw)
	right := NewStream(rightRaw)

	if err := left.Send(NewMessage([]byte("ping from left"))); err != nil {
		t.Fatal(err)
	}

	msg, err := right.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Payload) != "ping from left" {
		t.Fatalf("got %q", msg.Payload)
	}
}

func TestStreamRecvUpdatesLastPong(t *testing.T) {
	leftRaw, rightRaw := stream.NewLoopbackPair()
	right := NewStream(rightRaw)

	before := right.LastPong()

	if err := WriteFrame(leftRaw, NewFrame(OpcodePong, nil)); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(leftRaw, NewFrame(OpcodeText, []byte("x"))); err != nil {
		t.Fatal(err)
	}

	if _, err := right.Recv(); err != nil {
		t.Fatal(err)
	}
	if !right.LastPong().After(before) {
		t.Fatal("expected LastPong to advance after receiving a pong")
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	leftRaw, _ := stream.NewLoopbackPair()
	s := NewStream(leftRaw)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
