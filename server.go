// Package tii wires a router stack to a connection, implementing the
// per-connection read/dispatch/write/keep-alive loop, grounded on
// tii_server.rs's Server and tii_builder.rs's ServerBuilder. The teacher
// (andycostintoma/httpx) never built a server/listener layer of its own
// (it stops at parsing), so this package follows the original's
// semantics directly while keeping the idiom already established by
// internal/connector and router in this module: injected zerolog
// loggers, functional options, explicit error returns.
package tii

import (
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tiihttp/tii/internal/ctx"
	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/tiierr"
	"github.com/tiihttp/tii/internal/typesystem"
	"github.com/tiihttp/tii/router"
)

// Server dispatches accepted connections against a stack of Routers. It
// has no listener of its own: pair it with internal/connector.New (or
// any net.Listener accept loop) via Accept, which adapts Server to
// connector.Handler's func(net.Conn) shape.
type Server struct {
	log zerolog.Logger

	routers         []Router
	errorHandler    ErrorHandler
	notFoundHandler NotFoundHandler
	limits          httpx.HeadParseLimits
	typeSystem      *typesystem.Registry

	connectionTimeout  *time.Duration
	readTimeout        *time.Duration
	keepAliveTimeout   *time.Duration
	requestBodyTimeout *time.Duration
	writeTimeout       *time.Duration

	mu       sync.Mutex
	shutdown bool
	hooks    []func()
}

// New builds a Server from opts, applied in order. Three of the five
// timeouts (connection, keep-alive, request-body) fall back to the read
// timeout when left unset, mirroring ServerBuilder::build's
// `.or(read_timeout)` chain; an explicitly-set zero keep-alive timeout is
// distinct from "unset" and disables keep-alive outright.
func New(logger zerolog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		log:             logger,
		errorHandler:    defaultErrorHandler,
		notFoundHandler: defaultNotFoundHandler,
		limits:          httpx.DefaultHeadParseLimits(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.connectionTimeout == nil {
		s.connectionTimeout = s.readTimeout
	}
	if s.keepAliveTimeout == nil {
		s.keepAliveTimeout = s.readTimeout
	}
	if s.requestBodyTimeout == nil {
		s.requestBodyTimeout = s.readTimeout
	}
	return s, nil
}

func durationOf(d *time.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return *d
}

// keepAliveDisabled reports whether keep-alive was explicitly turned off
// via WithKeepAliveTimeout(0). An unset timeout (nil, whether left that
// way or because it fell back from an unset read timeout) means "wait
// indefinitely", not "disabled" — only an explicit zero disables it.
func (s *Server) keepAliveDisabled() bool {
	return s.keepAliveTimeout != nil && *s.keepAliveTimeout == 0
}

// IsShutdown reports whether Shutdown has been called.
func (s *Server) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Shutdown marks the server as shutting down, then runs every registered
// shutdown hook in reverse registration order. A panicking hook aborts
// the remaining ones and is not recovered here: a panicking hook is a bug
// in the embedder, not a condition tii should paper over.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// AddShutdownHook queues hook to run on Shutdown, in LIFO order relative
// to other hooks. If the server has already shut down, hook runs
// immediately instead of being queued, since it would otherwise never run.
func (s *Server) AddShutdownHook(hook func()) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		hook()
		return
	}
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

// Accept adapts Server to internal/connector.Handler, closing conn once
// the connection's request loop ends for any reason.
func (s *Server) Accept(conn net.Conn) {
	defer conn.Close()
	strm := stream.NewNetStream(conn)
	if err := s.HandleConnection(strm); err != nil {
		s.log.Debug().Err(err).Str("peer", strm.PeerAddr()).Msg("connection ended")
	}
}

// HandleConnection runs the request loop against s until the connection
// is closed, an unrecoverable error occurs, or keep-alive is declined.
// It does not close strm itself.
func (s *Server) HandleConnection(strm stream.Stream) error {
	return s.HandleConnectionWithMeta(strm, nil)
}

// HandleConnectionWithMeta is HandleConnection with opaque per-connection
// metadata attached to every RequestContext built off strm, retrievable
// via RequestContext.StreamMeta (e.g. the TLS handshake state a
// connector recorded before handing the stream off).
func (s *Server) HandleConnectionWithMeta(strm stream.Stream, meta any) error {
	if s.IsShutdown() {
		return net.ErrClosed
	}

	strm.SetReadTimeout(durationOf(s.connectionTimeout))
	ok, err := strm.EnsureReadable()
	if err != nil {
		return err
	}
	if !ok {
		// Unlike the per-request keep-alive wait, the client never sent a
		// single byte on a brand new connection: that's abnormal enough to
		// surface as an error rather than a quiet close.
		return io.ErrUnexpectedEOF
	}

	for count := 0; ; count++ {
		if count > 0 {
			more, err := s.awaitNextRequest(strm)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}

		strm.SetReadTimeout(durationOf(s.readTimeout))
		rc, err := ctx.Read(strm, meta, s.limits)
		if err != nil {
			return err
		}
		rc.SetTypeSystem(s.typeSystem)

		strm.SetReadTimeout(durationOf(s.requestBodyTimeout))
		head := rc.RequestHead()

		if head.Version == httpx.Version11 && isWebSocketUpgrade(head) {
			if err := s.dispatchWebSocket(strm, rc); err != nil {
				return err
			}
			return nil
		}

		keepAlive := !s.IsShutdown() && head.Version == httpx.Version11 &&
			!s.keepAliveDisabled() && wantsKeepAlive(head)

		resp := s.dispatchHTTP(rc)
		keepAlive = keepAlive && !rc.IsConnectionCloseForced()

		strm.SetWriteTimeout(durationOf(s.writeTimeout))
		if err := s.writeResponse(strm, head.Version, resp, keepAlive, rc); err != nil {
			return err
		}
		if !keepAlive {
			return nil
		}
	}
}

// dispatchHTTP tries each router's Serve in turn, falling back to
// notFoundHandler when none of them produce a response.
func (s *Server) dispatchHTTP(rc *ctx.RequestContext) *httpx.Response {
	for _, r := range s.routers {
		resp, err := r.Serve(rc)
		if err != nil {
			return s.handleError(rc, err)
		}
		if resp != nil {
			return resp
		}
	}
	resp, err := s.notFoundHandler(rc)
	if err != nil {
		return s.handleError(rc, err)
	}
	return resp
}

// dispatchWebSocket tries each router's ServeWebSocket in turn. A router
// that performs the handshake and runs its handler owns the rest of the
// connection's lifetime; dispatchWebSocket then has nothing left to write
// and returns nil so the caller tears the connection down.
func (s *Server) dispatchWebSocket(strm stream.Stream, rc *ctx.RequestContext) error {
	for _, r := range s.routers {
		result, resp, err := r.ServeWebSocket(strm, rc)
		if err != nil {
			resp = s.handleError(rc, err)
			return s.writeResponse(strm, rc.RequestHead().Version, resp, false, rc)
		}
		switch result {
		case router.HandledWithUpgrade:
			return nil
		case router.HandledWithoutUpgrade:
			return s.writeResponse(strm, rc.RequestHead().Version, resp, false, rc)
		}
	}
	resp, err := s.notFoundHandler(rc)
	if err != nil {
		resp = s.handleError(rc, err)
	}
	return s.writeResponse(strm, rc.RequestHead().Version, resp, false, rc)
}

// handleError runs the configured error handler, falling back to a bare
// 500 if the error handler itself fails, and always forces the
// connection closed afterward: an error mid-dispatch leaves no guarantee
// the connection is in a state keep-alive could safely reuse.
func (s *Server) handleError(rc *ctx.RequestContext, err error) *httpx.Response {
	rc.ForceConnectionClose()
	resp, herr := s.errorHandler(rc, err)
	if herr != nil {
		s.log.Error().Err(herr).Msg("error handler itself failed")
		return httpx.NewResponse(httpx.StatusInternalServerError)
	}
	return resp
}

// writeResponse writes resp and then unconditionally drains whatever is
// left of the request body, so a handler that ignored the body doesn't
// leave stray bytes in the stream for the next keep-alive request to trip
// over (mirrors write_response's trailing consume_request_body call).
func (s *Server) writeResponse(strm stream.Stream, version httpx.Version, resp *httpx.Response, keepAlive bool, rc *ctx.RequestContext) error {
	if err := httpx.ResolveEntity(resp, rc.RequestHead().Accept); err != nil {
		resp = s.handleError(rc, err)
		keepAlive = false
	}
	if err := httpx.WriteResponse(strm, version, resp, keepAlive); err != nil {
		return err
	}
	return rc.ConsumeRequestBody()
}

// awaitNextRequest blocks for up to the keep-alive timeout waiting for
// the next pipelined request. It returns (true, nil) when one is ready,
// (false, nil) on a clean disconnect, and propagates any other error.
func (s *Server) awaitNextRequest(strm stream.Stream) (bool, error) {
	if s.IsShutdown() {
		return false, nil
	}
	if strm.Available() > 0 {
		return true, nil
	}
	strm.SetReadTimeout(durationOf(s.keepAliveTimeout))
	ok, err := strm.EnsureReadable()
	if err != nil {
		if tiierr.IsCleanDisconnect(err) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func isWebSocketUpgrade(head *httpx.RequestHead) bool {
	v, ok := head.Headers.Get(httpx.HeaderUpgrade.String())
	return ok && strings.EqualFold(v, "websocket")
}

// wantsKeepAlive reports whether the request explicitly asked to keep the
// connection alive. Per the original's keep-alive computation, absence of
// the Connection header means false, not true: HTTP/1.1 does default to
// persistent connections at the protocol level, but this server only
// keeps one open when the request says so.
func wantsKeepAlive(head *httpx.RequestHead) bool {
	v, ok := head.Headers.Get(httpx.HeaderConnection.String())
	if !ok {
		return false
	}
	for _, tok := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "keep-alive") {
			return true
		}
	}
	return false
}
