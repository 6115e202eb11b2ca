package ws

import (
	"testing"

	"github.com/tiihttp/tii/internal/stream"
)

func TestReadMessageSingleFrame(t *testing.T) {
	left, right := stream.NewLoopbackPair()
	if err := WriteFrame(left, NewFrame(OpcodeText, []byte("hi"))); err != nil {
		t.Fatal(err)
	}

	msg, err := ReadMessage(right)
	if err != nil {
		t.Fatal(err)
	}
	if !msg.Text || string(msg.Payload) != "hi" {
		t.Fatalf("got %+v", msg)
	}
}

func TestReadMessageReassemblesContinuation(t *testing.T) {
	left, right := stream.NewLoopbackPair()
	first := NewFrame(OpcodeText, []byte("hello "))
	first.Fin = false
	if err := WriteFrame(left, first); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(left, NewFrame(OpcodeContinuation, []byte("world"))); err != nil {
		t.Fatal(err)
	}

	msg, err := ReadMessage(right)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Payload) != "hello world" {
		t.Fatalf("got %q", msg.Payload)
	}
}

func TestReadMessageAutoReplysToPing(t *testing.T) {
	left, right := stream.NewLoopbackPair()
	if err := WriteFrame(left, NewFrame(OpcodePing, []byte("p"))); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(left, NewFrame(OpcodeText, []byte("after-ping"))); err != nil {
		t.Fatal(err)
	}

	msg, err := ReadMessage(right)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Payload) != "after-ping" {
		t.Fatalf("got %q", msg.Payload)
	}

	pong, err := ReadFrame(left)
	if err != nil {
		t.Fatal(err)
	}
	if pong.Opcode != OpcodePong || string(pong.Payload) != "p" {
		t.Fatalf("expected pong echo, got %+v", pong)
	}
}

func TestReadMessageCloseFrameReturnsErr(t *testing.T) {
	left, right := stream.NewLoopbackPair()
	if err := WriteFrame(left, NewFrame(OpcodeClose, nil)); err != nil {
		t.Fatal(err)
	}

	_, err := ReadMessage(right)
	if err != ErrConnectionClosed {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestNewMessageDetectsBinaryForInvalidUTF8(t *testing.T) {
	m := NewMessage([]byte{0xff, 0xfe, 0xfd})
	if m.Text {
		t.Fatal("expected binary detection for invalid utf8")
	}
}
