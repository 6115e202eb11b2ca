// Package ctx holds RequestContext, the per-request state bundle threaded
// through parsing, routing, filters and the handler (spec §3 data model),
// grounded on request_context.rs's RequestContext.
package ctx

import (
	"sync"

	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/idgen"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/tiierr"
	"github.com/tiihttp/tii/internal/typesystem"
)

// RequestContext carries everything needed to process one request: its
// identity, the parsed head and optional body, routing results filled in
// as dispatch proceeds, and a free-form property bag filters can use to
// pass data to the handler.
type RequestContext struct {
	id           uint64
	peerAddress  string
	localAddress string

	head *httpx.RequestHead
	body *httpx.RequestBody

	forceConnectionClose bool

	streamMeta any

	routedPath string

	// typeSystem is the optional dynamic-cast registry (spec §3 data
	// model: "an optional type-system handle used for dynamic casting of
	// request/response entities in filters"). Built once at Server
	// construction and shared read-only across every request; nil if the
	// embedder never configured one.
	typeSystem *typesystem.Registry

	mu         sync.Mutex
	pathParams map[string]string
	properties map[string]any
}

// New builds a RequestContext programmatically, bypassing wire parsing;
// useful for unit testing endpoints (mirrors RequestContext::new).
func New(peerAddress, localAddress string, head *httpx.RequestHead, body *httpx.RequestBody, streamMeta any) *RequestContext {
	return &RequestContext{
		id:           idgen.Next(),
		peerAddress:  peerAddress,
		localAddress: localAddress,
		head:         head,
		body:         body,
		streamMeta:   streamMeta,
	}
}

// Read parses a RequestHead off s and selects its body per spec §4.3,
// assembling a RequestContext (mirrors RequestContext::read). It does not
// read any part of the body itself.
func Read(s stream.Stream, streamMeta any, limits httpx.HeadParseLimits) (*RequestContext, error) {
	peer, local := s.PeerAddr(), s.LocalAddr()

	head, err := httpx.ParseRequestHead(s, limits)
	if err != nil {
		return nil, err
	}

	rc := &RequestContext{
		id:           idgen.Next(),
		peerAddress:  peer,
		localAddress: local,
		head:         head,
		streamMeta:   streamMeta,
	}

	if head.Version == httpx.Version09 {
		rc.forceConnectionClose = true
		return rc, nil
	}

	body, forceClose, err := httpx.NewRequestBody(s, head)
	if err != nil {
		return nil, err
	}
	rc.body = body
	rc.forceConnectionClose = forceClose
	return rc, nil
}

// ID returns the process-unique id assigned to this request.
func (rc *RequestContext) ID() uint64 { return rc.id }

// PeerAddress returns the address of the connected peer.
func (rc *RequestContext) PeerAddress() string { return rc.peerAddress }

// LocalAddress returns the address of the local socket that accepted the
// connection.
func (rc *RequestContext) LocalAddress() string { return rc.localAddress }

// RequestHead returns the parsed request head. Filters and handlers may
// mutate it through its own methods (e.g. SetHeader).
func (rc *RequestContext) RequestHead() *httpx.RequestHead { return rc.head }

// RequestBody returns the request body, or nil if the request has none.
func (rc *RequestContext) RequestBody() *httpx.RequestBody { return rc.body }

// SetBodyConsumeOld replaces the current body with a new one (or nil),
// draining the old body first so the connection stays in a consistent
// state (mirrors set_body_consume_old).
func (rc *RequestContext) SetBodyConsumeOld(body *httpx.RequestBody) error {
	if err := httpx.Drain(rc.body); err != nil {
		return err
	}
	rc.body = body
	return nil
}

// ConsumeRequestBody fully drains the current body, if any, so that a
// handler that ignores the body still leaves the connection reusable.
// Safe to call more than once.
func (rc *RequestContext) ConsumeRequestBody() error {
	return httpx.Drain(rc.body)
}

// ForceConnectionClose marks the connection to be closed once the current
// request has been answered. Sensible when an unrecoverable error was
// encountered mid-request.
func (rc *RequestContext) ForceConnectionClose() { rc.forceConnectionClose = true }

// IsConnectionCloseForced reports whether the connection will be closed
// after this request regardless of keep-alive negotiation.
func (rc *RequestContext) IsConnectionCloseForced() bool { return rc.forceConnectionClose }

// StreamMeta returns the opaque per-connection metadata attached by the
// connector, or nil. Callers type-assert to the concrete type they expect.
func (rc *RequestContext) StreamMeta() any { return rc.streamMeta }

// TypeSystem returns the cast registry configured on the server that
// accepted this connection, or nil if none was configured.
func (rc *RequestContext) TypeSystem() *typesystem.Registry { return rc.typeSystem }

// SetTypeSystem attaches the server's cast registry to rc. Called once,
// by the server, right after the RequestContext is built; not meant to
// be called by filters or handlers.
func (rc *RequestContext) SetTypeSystem(ts *typesystem.Registry) { rc.typeSystem = ts }

// RoutedPath returns the path template the router matched against, or ""
// before routing has run.
func (rc *RequestContext) RoutedPath() string { return rc.routedPath }

// SetRoutedPath records the path template that matched this request.
// Called by the router after a match is chosen; calling it from a
// pre-routing filter has no effect on the routing decision itself.
func (rc *RequestContext) SetRoutedPath(path string) { rc.routedPath = path }

// PathParam returns the decoded value of a named path segment, and
// whether it was present.
func (rc *RequestContext) PathParam(key string) (string, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.pathParams[key]
	return v, ok
}

// PathParams returns a snapshot of every path parameter.
func (rc *RequestContext) PathParams() map[string]string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]string, len(rc.pathParams))
	for k, v := range rc.pathParams {
		out[k] = v
	}
	return out
}

// SetPathParam records a path parameter extracted by the router.
func (rc *RequestContext) SetPathParam(key, value string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.pathParams == nil {
		rc.pathParams = make(map[string]string)
	}
	rc.pathParams[key] = value
}

// Property returns a previously-set property and whether it was present.
func (rc *RequestContext) Property(key string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.properties[key]
	return v, ok
}

// HasProperty reports whether a property with key exists.
func (rc *RequestContext) HasProperty(key string) bool {
	_, ok := rc.Property(key)
	return ok
}

// SetProperty stores value under key, returning the previous value if any.
// Used by filters to pass data forward to later filters and the handler.
func (rc *RequestContext) SetProperty(key string, value any) any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.properties == nil {
		rc.properties = make(map[string]any)
	}
	old := rc.properties[key]
	rc.properties[key] = value
	return old
}

// RemoveProperty deletes a property, returning its value if it existed.
func (rc *RequestContext) RemoveProperty(key string) any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	old, ok := rc.properties[key]
	if !ok {
		return nil
	}
	delete(rc.properties, key)
	return old
}

// PropertyKeys returns the set of currently stored property keys.
func (rc *RequestContext) PropertyKeys() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	keys := make([]string, 0, len(rc.properties))
	for k := range rc.properties {
		keys = append(keys, k)
	}
	return keys
}

// CastProperty looks up key in rc's property bag and casts it to DST
// through rc's type system, grounded on response_context.rs's
// cast_response_entity: a filter that only knows a target interface, not
// a property's concrete type (e.g. one set by an earlier filter in a
// different package), can still reach it. A generic method cannot carry
// its own type parameter in Go, hence this is a function, not a method.
func CastProperty[DST any](rc *RequestContext, key string) (DST, error) {
	var zero DST
	v, ok := rc.Property(key)
	if !ok {
		return zero, tiierr.NewTypeSystemError("property " + key + " is not set")
	}
	return typesystem.Cast[DST](rc.typeSystem, v)
}
