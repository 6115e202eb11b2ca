package wsbroadcast

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/tiihttp/tii/internal/log"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/ws"
)

// newLinkedPair uses a real, synchronously-rendezvousing net.Pipe rather
// than stream.NewLoopbackPair: the broadcaster's read loop blocks
// waiting for data to arrive, which NewLoopbackPair's buffer-backed
// streams don't do (an empty buffer reads as an immediate EOF, fine for
// the parse-once-then-done reads elsewhere in this repo but wrong for a
// long-lived background read loop).
func newLinkedPair(t *testing.T, b *Broadcaster) (server *ws.Stream, client *ws.Stream) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server = ws.NewStream(stream.NewNetStream(serverConn))
	client = ws.NewStream(stream.NewNetStream(clientConn))
	b.Link(server)
	return server, client
}

func TestBroadcasterInvokesConnectAndMessageHandlers(t *testing.T) {
	var mu sync.Mutex
	var connected bool
	var received string

	connectCh := make(chan struct{}, 1)
	msgCh := make(chan struct{}, 1)

	b := New(log.Nop(),
		WithHeartbeat(50*time.Millisecond),
		WithConnectHandler(func(h *Handle) {
			mu.Lock()
			connected = true
			mu.Unlock()
			connectCh <- struct{}{}
		}),
		WithMessageHandler(func(h *Handle, msg ws.Message) {
			mu.Lock()
			received = string(msg.Payload)
			mu.Unlock()
			msgCh <- struct{}{}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	_, clientStream := newLinkedPair(t, b)

	select {
	case <-connectCh:
	case <-time.After(time.Second):
		t.Fatal("connect handler did not fire")
	}
	mu.Lock()
	if !connected {
		t.Fatal("expected connected to be true")
	}
	mu.Unlock()

	if err := clientStream.Send(ws.NewMessage([]byte("hello"))); err != nil {
		t.Fatal(err)
	}

	select {
	case <-msgCh:
	case <-time.After(time.Second):
		t.Fatal("message handler did not fire")
	}
	mu.Lock()
	if received != "hello" {
		t.Fatalf("got %q", received)
	}
	mu.Unlock()
}

func TestBroadcasterFansOutToAllClients(t *testing.T) {
	b := New(log.Nop(), WithHeartbeat(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	_, client1 := newLinkedPair(t, b)
	_, client2 := newLinkedPair(t, b)
	time.Sleep(50 * time.Millisecond) // let both clients register

	b.Sender().Broadcast(ws.NewMessage([]byte("to everyone")))

	for _, c := range []*ws.Stream{client1, client2} {
		msg, err := c.Recv()
		if err != nil {
			t.Fatal(err)
		}
		if string(msg.Payload) != "to everyone" {
			t.Fatalf("got %q", msg.Payload)
		}
	}
}

func TestBroadcasterDisconnectHandlerFiresOnClose(t *testing.T) {
	disconnectCh := make(chan struct{}, 1)
	b := New(log.Nop(),
		WithHeartbeat(time.Minute),
		WithDisconnectHandler(func(h *Handle) { disconnectCh <- struct{}{} }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	_, clientStream := newLinkedPair(t, b)
	clientStream.Close()

	select {
	case <-disconnectCh:
	case <-time.After(time.Second):
		t.Fatal("disconnect handler did not fire after close")
	}
}
