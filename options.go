package tii

import (
	"time"

	"github.com/tiihttp/tii/internal/ctx"
	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/typesystem"
	"github.com/tiihttp/tii/router"
)

// Router is satisfied by *router.Router; Server depends on this instead
// of the concrete type, mirroring tii_server.rs's Vec<Box<dyn Router>> —
// a connection tries each registered router in turn until one handles it.
type Router interface {
	Serve(rc *ctx.RequestContext) (*httpx.Response, error)
	ServeWebSocket(s stream.Stream, rc *ctx.RequestContext) (router.ServeWebSocketResult, *httpx.Response, error)
}

// ErrorHandler is invoked when a router, a filter or the connection loop
// itself produces an error that isn't a clean disconnect. Returning an
// error from it falls back to a bare 500 response.
type ErrorHandler func(rc *ctx.RequestContext, err error) (*httpx.Response, error)

// NotFoundHandler answers a request that no registered router claimed at
// all, distinct from router.NotRouteableHandler: at this point there are
// no Routeables left to list in an Allow header, since every router's own
// fallback handler already had its chance.
type NotFoundHandler func(rc *ctx.RequestContext) (*httpx.Response, error)

func defaultErrorHandler(rc *ctx.RequestContext, err error) (*httpx.Response, error) {
	return httpx.NewResponse(httpx.StatusInternalServerError), nil
}

func defaultNotFoundHandler(rc *ctx.RequestContext) (*httpx.Response, error) {
	return httpx.NewResponse(httpx.StatusNotFound), nil
}

// Option configures a Server at construction time. Options that validate
// their input (WithMaxHeadBufferSize) return an error from New rather
// than panicking, mirroring ServerBuilder's fallible with_* setters.
type Option func(*Server) error

// WithRouter registers a router to be tried, in registration order, for
// every connection. A Server with no routers always answers 404.
func WithRouter(r Router) Option {
	return func(s *Server) error {
		s.routers = append(s.routers, r)
		return nil
	}
}

// WithErrorHandler overrides the handler invoked when routing or dispatch
// fails with an error other than a clean disconnect.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Server) error {
		s.errorHandler = h
		return nil
	}
}

// WithNotFoundHandler overrides the handler invoked when no registered
// router claims a request at all.
func WithNotFoundHandler(h NotFoundHandler) Option {
	return func(s *Server) error {
		s.notFoundHandler = h
		return nil
	}
}

// WithTypeSystem attaches a dynamic-cast registry to every RequestContext
// the server builds (spec §3 data model: "an optional type-system handle
// used for dynamic casting of request/response entities in filters").
// Build ts once with typesystem.NewBuilder/RegisterCast/Build before
// passing it here; per spec's invariants, the type system is read-only
// after server construction.
func WithTypeSystem(ts *typesystem.Registry) Option {
	return func(s *Server) error {
		s.typeSystem = ts
		return nil
	}
}

// WithMaxHeadBufferSize caps the status line and each header line at size
// bytes. Rejects anything under 256 bytes, since that can't even hold a
// minimal request line plus Host header.
func WithMaxHeadBufferSize(size int) Option {
	return func(s *Server) error {
		if size < minHeadBufferSize {
			return ErrHeadBufferTooSmall
		}
		s.limits.MaxHeadBytes = size
		return nil
	}
}

// WithConnectionTimeout bounds how long a connection may sit idle before
// its first request arrives. Falls back to the read timeout if unset.
func WithConnectionTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.connectionTimeout = &d
		return nil
	}
}

// WithReadTimeout bounds every blocking read on the connection once a
// request is in flight, and is the fallback for the connection, keep-
// alive and request-body timeouts when those are left unset.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.readTimeout = &d
		return nil
	}
}

// WithWriteTimeout bounds writing the response.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.writeTimeout = &d
		return nil
	}
}

// WithKeepAliveTimeout bounds how long a connection may sit idle between
// requests once at least one has been served. Passing 0 explicitly
// disables keep-alive entirely: every HTTP/1.1 response then carries
// Connection: Close, regardless of what the client asked for.
func WithKeepAliveTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.keepAliveTimeout = &d
		return nil
	}
}

// WithRequestBodyTimeout bounds reads performed while draining or
// streaming a request body. Falls back to the read timeout if unset.
func WithRequestBodyTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.requestBodyTimeout = &d
		return nil
	}
}
