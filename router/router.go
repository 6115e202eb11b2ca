// Package router provides a fluent builder for assembling an
// internal/routing.Router plus the WebSocket upgrade routes layered on
// top of it, grounded on tii_router_builder.rs's RouterBuilder/RouteBuilder
// and tii_router.rs's BasicRouter::serve_ws/websocket_handshake.
package router

import (
	"github.com/rs/zerolog"

	"github.com/tiihttp/tii/builtinhandlers"
	"github.com/tiihttp/tii/internal/ctx"
	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/mime"
	"github.com/tiihttp/tii/internal/qvalue"
	"github.com/tiihttp/tii/internal/routing"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/ws"
)

// WebSocketHandler serves one upgraded WebSocket connection. conn is
// closed by the caller once the handler returns, mirroring
// TiiWebsocketEndpoint::serve's receiver/sender pair collapsed onto a
// single bidirectional stream.
type WebSocketHandler func(rc *ctx.RequestContext, conn *ws.Stream) error

type wsRoute struct {
	routeable *routing.Routeable
	handler   WebSocketHandler
}

func defaultRouterFilter(*ctx.RequestContext) (bool, error) { return true, nil }

// Builder assembles routes, filters and fallback handlers into a Router,
// mirroring RouterBuilder's field set.
type Builder struct {
	log zerolog.Logger

	routerFilter      routing.RouterFilter
	preRoutingFilters []routing.RequestFilter
	routingFilters    []routing.RequestFilter
	responseFilters   []routing.ResponseFilter

	httpRouteables []*routing.Routeable
	httpHandlers   []routing.Handler

	wsRoutes []wsRoute

	notFound, methodNotAllowed, unsupportedMedia, notAcceptable routing.NotRouteableHandler
	errorHandler                                                routing.ErrorHandler
}

// New builds a Builder pre-wired with builtinhandlers' default fallback
// handlers and a router filter that always accepts (default_pre_routing_filter).
func New(logger zerolog.Logger) *Builder {
	h := builtinhandlers.New(logger)
	return &Builder{
		log:              logger,
		routerFilter:     defaultRouterFilter,
		notFound:         h.NotFound,
		methodNotAllowed: h.MethodNotAllowed,
		unsupportedMedia: h.UnsupportedMediaType,
		notAcceptable:    h.NotAcceptable,
		errorHandler:     h.Error,
	}
}

// WithRouterFilter overrides the predicate that decides whether this
// router serves a request at all (e.g. by Host header).
func (b *Builder) WithRouterFilter(f routing.RouterFilter) *Builder {
	b.routerFilter = f
	return b
}

// WithPreRoutingFilter registers a filter that runs before routing and
// may rewrite the request path.
func (b *Builder) WithPreRoutingFilter(f routing.RequestFilter) *Builder {
	b.preRoutingFilters = append(b.preRoutingFilters, f)
	return b
}

// WithRoutingFilter registers a filter that runs once a route is matched
// but before its handler.
func (b *Builder) WithRoutingFilter(f routing.RequestFilter) *Builder {
	b.routingFilters = append(b.routingFilters, f)
	return b
}

// WithResponseFilter registers a filter that runs on every response.
func (b *Builder) WithResponseFilter(f routing.ResponseFilter) *Builder {
	b.responseFilters = append(b.responseFilters, f)
	return b
}

// WithNotFoundHandler overrides the 404 fallback.
func (b *Builder) WithNotFoundHandler(h routing.NotRouteableHandler) *Builder {
	b.notFound = h
	return b
}

// WithMethodNotAllowedHandler overrides the 405 fallback.
func (b *Builder) WithMethodNotAllowedHandler(h routing.NotRouteableHandler) *Builder {
	b.methodNotAllowed = h
	return b
}

// WithUnsupportedMediaTypeHandler overrides the 415 fallback.
func (b *Builder) WithUnsupportedMediaTypeHandler(h routing.NotRouteableHandler) *Builder {
	b.unsupportedMedia = h
	return b
}

// WithNotAcceptableHandler overrides the 406 fallback.
func (b *Builder) WithNotAcceptableHandler(h routing.NotRouteableHandler) *Builder {
	b.notAcceptable = h
	return b
}

// WithErrorHandler overrides the handler invoked when any filter or
// endpoint returns an error.
func (b *Builder) WithErrorHandler(h routing.ErrorHandler) *Builder {
	b.errorHandler = h
	return b
}

// RouteBuilder accumulates consumes/produces constraints for one route
// before it is finished with Endpoint, mirroring RouteBuilder.
type RouteBuilder struct {
	parent   *Builder
	path     string
	method   httpx.Method
	consumes []mime.MediaType
	produces []mime.MediaType
}

// Consumes records a mime type this endpoint accepts as a request body.
// An empty consumes set (the default) means the route declines any
// request that carries a Content-Type.
func (rb *RouteBuilder) Consumes(m mime.MediaType) *RouteBuilder {
	rb.consumes = append(rb.consumes, m)
	return rb
}

// Produces records a mime type this endpoint may answer with. An empty
// produces set (the default) means the route matches any Accept header.
func (rb *RouteBuilder) Produces(m mime.MediaType) *RouteBuilder {
	rb.produces = append(rb.produces, m)
	return rb
}

// Endpoint finishes the route, registering handler against it, and
// returns the Builder for further chaining.
func (rb *RouteBuilder) Endpoint(handler routing.Handler) (*Builder, error) {
	ro, err := routing.NewRouteable(rb.path, rb.method, rb.consumes, rb.produces)
	if err != nil {
		return nil, err
	}
	rb.parent.httpRouteables = append(rb.parent.httpRouteables, ro)
	rb.parent.httpHandlers = append(rb.parent.httpHandlers, handler)
	return rb.parent, nil
}

// Get begins building a GET endpoint at path.
func (b *Builder) Get(path string) *RouteBuilder { return b.method(httpx.MethodGet, path) }

// Post begins building a POST endpoint at path.
func (b *Builder) Post(path string) *RouteBuilder { return b.method(httpx.MethodPost, path) }

// Put begins building a PUT endpoint at path.
func (b *Builder) Put(path string) *RouteBuilder { return b.method(httpx.MethodPut, path) }

// Patch begins building a PATCH endpoint at path.
func (b *Builder) Patch(path string) *RouteBuilder { return b.method(httpx.MethodPatch, path) }

// Delete begins building a DELETE endpoint at path.
func (b *Builder) Delete(path string) *RouteBuilder { return b.method(httpx.MethodDelete, path) }

// Options begins building an OPTIONS endpoint at path.
func (b *Builder) Options(path string) *RouteBuilder { return b.method(httpx.MethodOptions, path) }

// Method begins building an endpoint for a custom or less common method.
func (b *Builder) Method(m httpx.Method, path string) *RouteBuilder { return b.method(m, path) }

func (b *Builder) method(m httpx.Method, path string) *RouteBuilder {
	return &RouteBuilder{parent: b, path: path, method: m}
}

// RouteAny registers handler against GET, PUT, POST, PATCH, DELETE and
// OPTIONS at path, for any media type, mirroring route_any.
func (b *Builder) RouteAny(path string, handler routing.Handler) (*Builder, error) {
	cur := b
	var err error
	for _, m := range []httpx.Method{httpx.MethodGet, httpx.MethodPut, httpx.MethodPost, httpx.MethodPatch, httpx.MethodDelete, httpx.MethodOptions} {
		cur, err = cur.RouteMethod(m, path, handler)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// RouteMethod registers handler against method at path, for any media
// type, mirroring route_method.
func (b *Builder) RouteMethod(m httpx.Method, path string, handler routing.Handler) (*Builder, error) {
	ro, err := routing.NewRouteable(path, m, []mime.MediaType{mime.Wildcard}, nil)
	if err != nil {
		return nil, err
	}
	b.httpRouteables = append(b.httpRouteables, ro)
	b.httpHandlers = append(b.httpHandlers, handler)
	return b, nil
}

// WsRouteGet registers a WebSocket upgrade handler at path for GET
// requests, the method ordinary browser WebSocket clients issue.
func (b *Builder) WsRouteGet(path string, handler WebSocketHandler) (*Builder, error) {
	return b.WsRouteMethod(httpx.MethodGet, path, handler)
}

// WsRouteMethod registers a WebSocket upgrade handler at path for a
// specific HTTP method, mirroring ws_route_method.
func (b *Builder) WsRouteMethod(m httpx.Method, path string, handler WebSocketHandler) (*Builder, error) {
	ro, err := routing.NewRouteable(path, m, nil, nil)
	if err != nil {
		return nil, err
	}
	b.wsRoutes = append(b.wsRoutes, wsRoute{routeable: ro, handler: handler})
	return b, nil
}

// WsRouteAny registers handler against every commonly used HTTP method,
// mirroring ws_route_any.
func (b *Builder) WsRouteAny(path string, handler WebSocketHandler) (*Builder, error) {
	cur := b
	var err error
	for _, m := range []httpx.Method{httpx.MethodGet, httpx.MethodPut, httpx.MethodPost, httpx.MethodPatch, httpx.MethodDelete, httpx.MethodOptions} {
		cur, err = cur.WsRouteMethod(m, path, handler)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// Build assembles a Router from everything registered so far.
func (b *Builder) Build() *Router {
	rr := routing.New(b.routerFilter, b.notFound, b.methodNotAllowed, b.unsupportedMedia, b.notAcceptable, b.errorHandler)
	for _, f := range b.preRoutingFilters {
		rr.AddPreRoutingFilter(f)
	}
	for _, f := range b.routingFilters {
		rr.AddRoutingFilter(f)
	}
	for _, f := range b.responseFilters {
		rr.AddResponseFilter(f)
	}
	for i, ro := range b.httpRouteables {
		rr.AddRoute(ro, b.httpHandlers[i])
	}

	allRouteables := append([]*routing.Routeable{}, b.httpRouteables...)
	for _, wr := range b.wsRoutes {
		allRouteables = append(allRouteables, wr.routeable)
	}

	return &Router{
		http:              rr,
		log:               b.log,
		routerFilter:      b.routerFilter,
		preRoutingFilters: b.preRoutingFilters,
		routingFilters:    b.routingFilters,
		responseFilters:   b.responseFilters,
		wsRoutes:          b.wsRoutes,
		allRouteables:     allRouteables,
		notFound:          b.notFound,
		methodNotAllowed:  b.methodNotAllowed,
		errorHandler:      b.errorHandler,
	}
}

// Router dispatches both plain HTTP requests and WebSocket upgrade
// attempts, mirroring BasicRouter's dual serve/serve_ws entry points.
type Router struct {
	http *routing.Router
	log  zerolog.Logger

	routerFilter      routing.RouterFilter
	preRoutingFilters []routing.RequestFilter
	routingFilters    []routing.RequestFilter
	responseFilters   []routing.ResponseFilter

	wsRoutes      []wsRoute
	allRouteables []*routing.Routeable

	notFound         routing.NotRouteableHandler
	methodNotAllowed routing.NotRouteableHandler
	errorHandler     routing.ErrorHandler
}

// Serve runs the plain HTTP dispatch chain. It never attempts a
// WebSocket upgrade; callers that want to support upgrades should try
// ServeWebSocket first when the request looks like one.
func (r *Router) Serve(rc *ctx.RequestContext) (*httpx.Response, error) {
	return r.http.Serve(rc)
}

// IsUpgradeRequest reports whether rc looks like a WebSocket upgrade
// attempt, judged only by the presence of a Sec-WebSocket-Key header; the
// Connection and Upgrade headers are not checked.
func IsUpgradeRequest(rc *ctx.RequestContext) bool {
	head := rc.RequestHead()
	_, hasKey := head.Headers.Get(httpx.HeaderSecWebSocketKey.String())
	return hasKey
}

// ServeWebSocketResult reports how ServeWebSocket disposed of a request.
type ServeWebSocketResult int

const (
	// NotHandled means this router's filter declined the request outright;
	// the caller should fall back to another router or plain HTTP serving.
	NotHandled ServeWebSocketResult = iota
	// HandledWithoutUpgrade means a response was produced (an error, a
	// filter short-circuit, or a fallback) without switching protocols.
	// The caller should write Response and keep the connection in HTTP mode.
	HandledWithoutUpgrade
	// HandledWithUpgrade means the 101 response was written and handler
	// has already run the WebSocket session to completion; the connection
	// should now be closed.
	HandledWithUpgrade
)

// ServeWebSocket mirrors BasicRouter::serve_ws/websocket_handshake: it
// shares the router filter and pre-routing filters with plain HTTP
// dispatch, matches only against WebSocket routes, and on a match
// performs the RFC 6455 handshake directly against s before invoking
// handler with the raw stream wrapped as a ws.Stream.
func (r *Router) ServeWebSocket(s stream.Stream, rc *ctx.RequestContext) (ServeWebSocketResult, *httpx.Response, error) {
	if r.routerFilter != nil {
		ok, err := r.routerFilter(rc)
		if err != nil {
			resp, herr := r.respondToError(rc, err)
			return HandledWithoutUpgrade, resp, herr
		}
		if !ok {
			return NotHandled, nil, nil
		}
	}

	for _, f := range r.preRoutingFilters {
		resp, err := f(rc)
		if err != nil {
			errResp, herr := r.respondToError(rc, err)
			return HandledWithoutUpgrade, errResp, herr
		}
		if resp != nil {
			return r.finishWithoutUpgrade(rc, resp)
		}
	}

	best := routing.Decision{Kind: routing.DecisionPathMismatch}
	var bestRoute *wsRoute
	for i := range r.wsRoutes {
		d := r.wsRoutes[i].routeable.Matches(rc)
		if !best.Less(d) {
			continue
		}
		best = d
		if d.Kind == routing.DecisionMatch {
			bestRoute = &r.wsRoutes[i]
			if d.Q == qvalue.Max {
				break
			}
		}
	}

	if bestRoute == nil {
		resp, err := r.invokeFallback(rc, best)
		if err != nil {
			errResp, herr := r.respondToError(rc, err)
			return HandledWithoutUpgrade, errResp, herr
		}
		return r.finishWithoutUpgrade(rc, resp)
	}

	rc.SetRoutedPath(bestRoute.routeable.Path)
	for k, v := range best.PathParams {
		rc.SetPathParam(k, v)
	}

	for _, f := range r.routingFilters {
		resp, err := f(rc)
		if err != nil {
			errResp, herr := r.respondToError(rc, err)
			return HandledWithoutUpgrade, errResp, herr
		}
		if resp != nil {
			return r.finishWithoutUpgrade(rc, resp)
		}
	}

	if err := rc.ConsumeRequestBody(); err != nil {
		errResp, herr := r.respondToError(rc, err)
		return HandledWithoutUpgrade, errResp, herr
	}

	if err := ws.Handshake(s, rc.RequestHead()); err != nil {
		errResp, herr := r.respondToError(rc, err)
		return HandledWithoutUpgrade, errResp, herr
	}

	conn := ws.NewStream(s)
	if err := bestRoute.handler(rc, conn); err != nil {
		r.log.Error().Err(err).Str("path", rc.RequestHead().Path).Msg("websocket handler returned an error")
	}
	conn.Close()
	return HandledWithUpgrade, nil, nil
}

func (r *Router) finishWithoutUpgrade(rc *ctx.RequestContext, resp *httpx.Response) (ServeWebSocketResult, *httpx.Response, error) {
	resp, err := r.callResponseFilters(rc, resp)
	if err != nil {
		errResp, herr := r.respondToError(rc, err)
		return HandledWithoutUpgrade, errResp, herr
	}
	return HandledWithoutUpgrade, resp, nil
}

func (r *Router) respondToError(rc *ctx.RequestContext, err error) (*httpx.Response, error) {
	rc.ForceConnectionClose()
	resp, herr := r.errorHandler(rc, err)
	if herr != nil {
		return nil, herr
	}
	resp, herr = r.callResponseFilters(rc, resp)
	if herr != nil {
		return nil, herr
	}
	return resp, nil
}

func (r *Router) callResponseFilters(rc *ctx.RequestContext, resp *httpx.Response) (*httpx.Response, error) {
	var err error
	for _, f := range r.responseFilters {
		resp, err = f(rc, resp)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// invokeFallback only distinguishes path and method mismatches: a
// WebSocket upgrade attempt has no request body to negotiate a media
// type against, so unsupported-media/not-acceptable never apply here.
func (r *Router) invokeFallback(rc *ctx.RequestContext, best routing.Decision) (*httpx.Response, error) {
	switch best.Kind {
	case routing.DecisionMethodMismatch:
		return r.methodNotAllowed(rc, r.allRouteables)
	default:
		return r.notFound(rc, r.allRouteables)
	}
}
