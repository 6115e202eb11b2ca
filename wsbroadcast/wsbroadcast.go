// Package wsbroadcast links WebSocket clients accepted by a server into
// a single fan-out hub: every client's messages can be echoed to one
// recipient or broadcast to all of them, with connect/disconnect/message
// hooks and an idle-ping heartbeat, grounded on
// extras/websocket_broadcaster.rs.
package wsbroadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tiihttp/tii/internal/ws"
)

// Message is a reassembled WebSocket message, re-exported so callers
// don't need to import internal/ws directly.
type Message = ws.Message

// EventHandler reacts to a client connecting or disconnecting.
type EventHandler func(h *Handle)

// MessageHandler reacts to a message a client sent.
type MessageHandler func(h *Handle, msg Message)

// defaultHeartbeat mirrors TiiWsbAppBuilder::default's 5 second
// heartbeat interval.
const defaultHeartbeat = 5 * time.Second

// Option configures a Broadcaster built by New.
type Option func(*Broadcaster)

// WithHeartbeat overrides the idle-ping interval. A client that has been
// sent nothing for longer than this is sent a ping to verify it is still
// alive; zero disables the heartbeat (no pings, and reads block without
// a timeout).
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broadcaster) { b.heartbeat = d }
}

// WithConnectHandler sets the hook called once per client right after
// it links into the broadcaster.
func WithConnectHandler(h EventHandler) Option {
	return func(b *Broadcaster) { b.onConnect = h }
}

// WithDisconnectHandler sets the hook called once per client when its
// connection ends, whether by error, timeout, or close frame.
func WithDisconnectHandler(h EventHandler) Option {
	return func(b *Broadcaster) { b.onDisconnect = h }
}

// WithMessageHandler sets the hook called for every text/binary message
// a client sends (pings/pongs never reach it; internal/ws answers those
// itself).
func WithMessageHandler(h MessageHandler) Option {
	return func(b *Broadcaster) { b.onMessage = h }
}

type outgoingKind int

const (
	kindDirect outgoingKind = iota
	kindBroadcast
)

type outgoingMessage struct {
	kind outgoingKind
	msg  Message
}

// Handle is passed to the connect/disconnect/message handlers and lets
// them talk back to the client that triggered the event, or to every
// connected client.
type Handle struct {
	addr string
	id   uuid.UUID
	out  chan<- outgoingMessage
}

// PeerAddr returns the remote address of the client this handle belongs
// to.
func (h *Handle) PeerAddr() string { return h.addr }

// ID returns a random identifier assigned to this client when it
// linked in. Unlike internal/idgen's monotonic request ids, this is
// meant to be handed to external callers (e.g. logged or sent back to
// the client itself as a session token), so a random UUID is the
// appropriate shape rather than a sequence number.
func (h *Handle) ID() uuid.UUID { return h.id }

// Send queues msg for delivery to this client only.
func (h *Handle) Send(msg Message) {
	select {
	case h.out <- outgoingMessage{kind: kindDirect, msg: msg}:
	default:
	}
}

// Broadcast queues msg for delivery to every connected client.
func (h *Handle) Broadcast(msg Message) {
	select {
	case h.out <- outgoingMessage{kind: kindBroadcast, msg: msg}:
	default:
	}
}

// Sender is a handle to the broadcaster that can be held outside of any
// client's lifetime (e.g. from an HTTP endpoint that publishes server
// events to every connected WebSocket client).
type Sender struct {
	ch chan<- Message
}

// Broadcast queues msg for delivery to every client currently connected.
// Best-effort: if the broadcaster's internal queue is full the message
// is dropped rather than blocking the caller.
func (s *Sender) Broadcast(msg Message) {
	select {
	case s.ch <- msg:
	default:
	}
}

// Broadcaster fans messages out to every linked client and dispatches
// per-client connect/disconnect/message events.
type Broadcaster struct {
	heartbeat    time.Duration
	onConnect    EventHandler
	onDisconnect EventHandler
	onMessage    MessageHandler
	log          zerolog.Logger

	incoming chan *client

	broadcastIn chan Message

	mu      sync.Mutex
	clients map[*client]struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}
	done         chan struct{}
}

type client struct {
	stream *ws.Stream
	addr   string
	id     uuid.UUID
	out    chan outgoingMessage
	done   chan struct{}
}

// New builds a Broadcaster; call Run to start its fan-out loop before
// linking any clients in.
func New(logger zerolog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		heartbeat:   defaultHeartbeat,
		log:         logger,
		incoming:    make(chan *client, 16),
		broadcastIn: make(chan Message, 64),
		clients:     make(map[*client]struct{}),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Sender returns a handle for broadcasting to all clients from outside
// any single client's lifetime.
func (b *Broadcaster) Sender() *Sender {
	return &Sender{ch: b.broadcastIn}
}

// Link hands an already-upgraded connection to the broadcaster, which
// spawns its read/write goroutines and registers it for broadcast
// fan-out (mirrors the original's websocket-endpoint hook handing a
// stream to the exec thread via a channel).
func (b *Broadcaster) Link(s *ws.Stream) {
	b.link(s)
}

// LinkAndWait is Link, except it blocks until that client's read/write
// loops have both finished and the connection has been closed. A
// router.WebSocketHandler must not return before the connection it was
// handed is done with, since the router closes it the moment the handler
// returns (router.Router.ServeWebSocket) — calling Link directly from a
// WebSocketHandler would race the broadcaster's own close against the
// router's.
func (b *Broadcaster) LinkAndWait(s *ws.Stream) {
	c := b.link(s)
	<-c.done
}

func (b *Broadcaster) link(s *ws.Stream) *client {
	c := &client{
		stream: s,
		addr:   s.PeerAddr(),
		id:     uuid.New(),
		out:    make(chan outgoingMessage, 16),
		done:   make(chan struct{}),
	}
	select {
	case b.incoming <- c:
	case <-b.shutdown:
		s.Close()
		close(c.done)
	}
	return c
}

// Run starts the broadcast fan-out and per-client dispatch loop. It
// blocks until ctx is cancelled or Shutdown is called, at which point it
// waits for in-flight client goroutines to finish.
func (b *Broadcaster) Run(ctx context.Context) error {
	defer close(b.done)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			b.Shutdown()
			wg.Wait()
			return ctx.Err()
		case <-b.shutdown:
			wg.Wait()
			return nil
		case msg := <-b.broadcastIn:
			b.mu.Lock()
			for c := range b.clients {
				select {
				case c.out <- outgoingMessage{kind: kindDirect, msg: msg}:
				default:
				}
			}
			b.mu.Unlock()
		case c := <-b.incoming:
			b.mu.Lock()
			b.clients[c] = struct{}{}
			b.mu.Unlock()
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.exec(c)
			}()
		}
	}
}

// Shutdown stops Run's loop. Safe to call more than once or before Run
// starts.
func (b *Broadcaster) Shutdown() {
	b.shutdownOnce.Do(func() { close(b.shutdown) })
}

// exec runs one client's read and write loops until the connection ends,
// mirroring websocket_broadcaster.rs's exec function (split into a read
// goroutine and a write goroutine instead of two OS threads).
func (b *Broadcaster) exec(c *client) {
	handle := &Handle{addr: c.addr, id: c.id, out: c.out}

	if b.onConnect != nil {
		b.onConnect(handle)
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.writeLoop(c, done, stop)
	}()
	go func() {
		defer wg.Done()
		b.readLoop(c, handle, done, stop)
	}()
	wg.Wait()

	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()

	c.stream.Close()
	close(c.done)

	if b.onDisconnect != nil {
		b.onDisconnect(handle)
	}
}

func (b *Broadcaster) writeLoop(c *client, done <-chan struct{}, stop func()) {
	for {
		var heartbeat <-chan time.Time
		if b.heartbeat > 0 {
			heartbeat = time.After(b.heartbeat)
		}
		select {
		case <-done:
			return
		case om := <-c.out:
			switch om.kind {
			case kindBroadcast:
				select {
				case b.broadcastIn <- om.msg:
				default:
				}
			default:
				if err := c.stream.Send(om.msg); err != nil {
					stop()
					return
				}
			}
		case <-heartbeat:
			if err := c.stream.Ping(); err != nil {
				stop()
				return
			}
		}
	}
}

func (b *Broadcaster) readLoop(c *client, handle *Handle, done <-chan struct{}, stop func()) {
	defer stop()
	for {
		select {
		case <-done:
			return
		default:
		}

		if b.heartbeat > 0 {
			c.stream.SetReadTimeout(b.heartbeat)
		}
		msg, err := c.stream.Recv()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return
		}
		if b.onMessage != nil {
			b.onMessage(handle, msg)
		}
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
