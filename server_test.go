package tii

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/tiihttp/tii/internal/ctx"
	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/log"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/ws"
	"github.com/tiihttp/tii/router"
)

// netPipe gives both ends of a synchronous, deadline-aware in-memory
// connection. Unlike stream.NewLoopbackPair (a pair of bytes.Buffers,
// immediate EOF once drained), net.Pipe blocks a reader until data
// actually arrives, which the server's keep-alive/ensure-readable loop
// depends on to tell "nothing yet" apart from "connection is over".
func netPipe() (stream.Stream, net.Conn) {
	server, client := net.Pipe()
	return stream.NewNetStream(server), client
}

func writeRequest(t *testing.T, conn net.Conn, raw string) {
	t.Helper()
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatal(err)
	}
}

func readResponse(t *testing.T, conn net.Conn) (status string, headers map[string]string, body string) {
	t.Helper()
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	status = line
	headers = map[string]string{}
	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "\r\n" {
			break
		}
		var k, v string
		for i := 0; i < len(line); i++ {
			if line[i] == ':' {
				k, v = line[:i], line[i+2:len(line)-2]
				break
			}
		}
		headers[k] = v
		if k == "Content-Length" {
			for _, c := range v {
				contentLength = contentLength*10 + int(c-'0')
			}
		}
	}
	buf := make([]byte, contentLength)
	if contentLength > 0 {
		if _, err := ioReadFull(r, buf); err != nil {
			t.Fatal(err)
		}
	}
	return status, headers, string(buf)
}

func ioReadFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func pingRouter(t *testing.T) *router.Router {
	t.Helper()
	b := router.New(log.Nop())
	b, err := b.Get("/ping").Endpoint(func(rc *ctx.RequestContext) (*httpx.Response, error) {
		return httpx.NewFixedStringResponse(httpx.StatusOK, "pong"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return b.Build()
}

func TestHandleConnectionSingleRequestConnectionClose(t *testing.T) {
	srv, err := New(log.Nop(), WithRouter(pingRouter(t)))
	if err != nil {
		t.Fatal(err)
	}

	strm, client := netPipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- srv.HandleConnection(strm) }()

	writeRequest(t, client, "GET /ping HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")

	status, headers, body := readResponse(t, client)
	if status != "HTTP/1.1 200 OK\r\n" {
		t.Fatalf("got status line %q", status)
	}
	if headers["Connection"] != "Close" {
		t.Fatalf("expected Connection: Close, got %q", headers["Connection"])
	}
	if body != "pong" {
		t.Fatalf("got body %q", body)
	}

	if err := <-done; err != nil {
		t.Fatalf("HandleConnection returned %v", err)
	}
}

func TestHandleConnectionKeepAlivePipelines(t *testing.T) {
	ka := time.Second
	srv, err := New(log.Nop(), WithRouter(pingRouter(t)), WithKeepAliveTimeout(ka))
	if err != nil {
		t.Fatal(err)
	}

	strm, client := netPipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- srv.HandleConnection(strm) }()

	for i := 0; i < 2; i++ {
		writeRequest(t, client, "GET /ping HTTP/1.1\r\nHost: x\r\nConnection: keep-alive\r\n\r\n")
		status, headers, body := readResponse(t, client)
		if status != "HTTP/1.1 200 OK\r\n" {
			t.Fatalf("request %d: got status line %q", i, status)
		}
		if headers["Connection"] != "Keep-Alive" {
			t.Fatalf("request %d: expected Keep-Alive, got %q", i, headers["Connection"])
		}
		if body != "pong" {
			t.Fatalf("request %d: got body %q", i, body)
		}
	}

	client.Close()
	if err := <-done; err == nil {
		t.Log("HandleConnection returned cleanly after peer close")
	}
}

func TestHandleConnectionNoConnectionHeaderDefaultsToClose(t *testing.T) {
	srv, err := New(log.Nop(), WithRouter(pingRouter(t)))
	if err != nil {
		t.Fatal(err)
	}

	strm, client := netPipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- srv.HandleConnection(strm) }()

	writeRequest(t, client, "GET /ping HTTP/1.1\r\nHost: x\r\n\r\n")
	_, headers, _ := readResponse(t, client)
	if headers["Connection"] != "Close" {
		t.Fatalf("expected Connection: Close with no Connection header sent, got %q", headers["Connection"])
	}
	<-done
}

func TestHandleConnectionNoRouterMeans404(t *testing.T) {
	srv, err := New(log.Nop())
	if err != nil {
		t.Fatal(err)
	}

	strm, client := netPipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- srv.HandleConnection(strm) }()

	writeRequest(t, client, "GET /missing HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	status, _, _ := readResponse(t, client)
	if status != "HTTP/1.1 404 Not Found\r\n" {
		t.Fatalf("got status line %q", status)
	}
	<-done
}

func TestHandleConnectionWebSocketUpgrade(t *testing.T) {
	b := router.New(log.Nop())
	b, err := b.WsRouteGet("/ws", func(rc *ctx.RequestContext, conn *ws.Stream) error {
		return conn.Send(ws.NewMessage([]byte("hi")))
	})
	if err != nil {
		t.Fatal(err)
	}
	rt := b.Build()

	srv, err := New(log.Nop(), WithRouter(rt))
	if err != nil {
		t.Fatal(err)
	}

	strm, client := netPipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- srv.HandleConnection(strm) }()

	writeRequest(t, client, "GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n")

	r := bufio.NewReader(client)
	statusLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if statusLine != "HTTP/1.1 101 Switching Protocols\r\n" {
		t.Fatalf("got %q", statusLine)
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "\r\n" {
			break
		}
	}

	frame, err := ws.ReadFrame(readerStream{r, client})
	if err != nil {
		t.Fatal(err)
	}
	if string(frame.Payload) != "hi" {
		t.Fatalf("got %q", frame.Payload)
	}

	// The router closes the WebSocket once the handler returns; net.Pipe
	// blocks that close frame's write until it is read here.
	closeFrame, err := ws.ReadFrame(readerStream{r, client})
	if err != nil {
		t.Fatal(err)
	}
	if closeFrame.Opcode != ws.OpcodeClose {
		t.Fatalf("expected close frame, got %+v", closeFrame)
	}

	<-done
}

// readerStream adapts a bufio.Reader plus the underlying net.Conn (for
// Close/deadlines) back into a stream.Stream, since the test already
// consumed the 101 response's header bytes into its own bufio.Reader and
// must keep reading the frame bytes that follow from that same buffer.
type readerStream struct {
	r    *bufio.Reader
	conn net.Conn
}

func (s readerStream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s readerStream) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s readerStream) ReadExact(buf []byte) error {
	_, err := ioReadFull(s.r, buf)
	return err
}
func (s readerStream) ReadUntil(delim byte, limit int) ([]byte, error) {
	return s.r.ReadBytes(delim)
}
func (s readerStream) Available() int               { return s.r.Buffered() }
func (s readerStream) EnsureReadable() (bool, error) { return true, nil }
func (s readerStream) Flush() error                  { return nil }
func (s readerStream) SetReadTimeout(d time.Duration) error  { return nil }
func (s readerStream) SetWriteTimeout(d time.Duration) error { return nil }
func (s readerStream) PeerAddr() string  { return s.conn.RemoteAddr().String() }
func (s readerStream) LocalAddr() string { return s.conn.LocalAddr().String() }
func (s readerStream) Close() error      { return s.conn.Close() }

func TestShutdownRunsHooksInReverseOrder(t *testing.T) {
	srv, err := New(log.Nop())
	if err != nil {
		t.Fatal(err)
	}

	var order []int
	srv.AddShutdownHook(func() { order = append(order, 1) })
	srv.AddShutdownHook(func() { order = append(order, 2) })
	srv.AddShutdownHook(func() { order = append(order, 3) })

	srv.Shutdown()

	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v want %v", order, want)
		}
	}
	if !srv.IsShutdown() {
		t.Fatal("expected IsShutdown to be true")
	}
}

func TestAddShutdownHookAfterShutdownRunsImmediately(t *testing.T) {
	srv, err := New(log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	srv.Shutdown()

	ran := false
	srv.AddShutdownHook(func() { ran = true })
	if !ran {
		t.Fatal("expected hook registered after shutdown to run immediately")
	}
}

func TestWithMaxHeadBufferSizeRejectsTooSmall(t *testing.T) {
	_, err := New(log.Nop(), WithMaxHeadBufferSize(16))
	if err != ErrHeadBufferTooSmall {
		t.Fatalf("got %v", err)
	}
}

func TestWithKeepAliveTimeoutZeroDisablesKeepAlive(t *testing.T) {
	srv, err := New(log.Nop(), WithRouter(pingRouter(t)), WithKeepAliveTimeout(0))
	if err != nil {
		t.Fatal(err)
	}

	strm, client := netPipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- srv.HandleConnection(strm) }()

	writeRequest(t, client, "GET /ping HTTP/1.1\r\nHost: x\r\nConnection: keep-alive\r\n\r\n")
	_, headers, _ := readResponse(t, client)
	if headers["Connection"] != "Close" {
		t.Fatalf("expected Connection: Close with keep-alive disabled, got %q", headers["Connection"])
	}
	<-done
}
