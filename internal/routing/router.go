package routing

import (
	"github.com/tiihttp/tii/internal/ctx"
	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/qvalue"
)

// Handler serves one matched HTTP request and produces a response,
// grounded on functional_traits.rs's RequestHandler.
type Handler func(rc *ctx.RequestContext) (*httpx.Response, error)

// RequestFilter runs before or after routing and may short-circuit the
// request by returning a non-nil response, grounded on RequestFilter.
type RequestFilter func(rc *ctx.RequestContext) (*httpx.Response, error)

// ResponseFilter runs once per request after the handler or an error
// handler has produced a response, grounded on ResponseFilter.
type ResponseFilter func(rc *ctx.RequestContext, resp *httpx.Response) (*httpx.Response, error)

// RouterFilter decides whether a router is responsible for a request at
// all (e.g. by Host header or path prefix), grounded on RouterFilter.
type RouterFilter func(rc *ctx.RequestContext) (bool, error)

// ErrorHandler converts an error raised anywhere in the dispatch chain
// into a response, grounded on tii_builder.rs's ErrorHandler alias.
type ErrorHandler func(rc *ctx.RequestContext, err error) (*httpx.Response, error)

// NotRouteableHandler produces a fallback response (404/405/415/406) when
// no route matched a request, grounded on NotRouteableHandler.
type NotRouteableHandler func(rc *ctx.RequestContext, routes []*Routeable) (*httpx.Response, error)

type route struct {
	routeable *Routeable
	handler   Handler
}

// Router dispatches a request through filters to the best-matching
// registered route, implementing the evaluation loop of
// BasicRouter::serve_inner/serve_outer.
type Router struct {
	routerFilter RouterFilter

	preRoutingFilters []RequestFilter
	routingFilters    []RequestFilter
	responseFilters   []ResponseFilter

	routeables []*Routeable
	routes     []route

	notFoundHandler         NotRouteableHandler
	methodNotAllowedHandler NotRouteableHandler
	unsupportedMediaHandler NotRouteableHandler
	notAcceptableHandler    NotRouteableHandler
	errorHandler               ErrorHandler
}

// New builds a Router. A nil routerFilter accepts every request; every
// other callback must be non-nil. Callers normally
// go through the router builder package rather than constructing this
// directly.
func New(
	routerFilter RouterFilter,
	notFound, methodNotAllowed, unsupportedMedia, notAcceptable NotRouteableHandler,
	errorHandler ErrorHandler,
) *Router {
	return &Router{
		routerFilter:            routerFilter,
		notFoundHandler:         notFound,
		methodNotAllowedHandler: methodNotAllowed,
		unsupportedMediaHandler: unsupportedMedia,
		notAcceptableHandler:    notAcceptable,
		errorHandler:            errorHandler,
	}
}

// AddPreRoutingFilter registers a filter that runs before a route is
// chosen and may alter the request path to affect the routing decision.
func (r *Router) AddPreRoutingFilter(f RequestFilter) { r.preRoutingFilters = append(r.preRoutingFilters, f) }

// AddRoutingFilter registers a filter that runs once a route has been
// chosen but before its handler, with path params already populated.
func (r *Router) AddRoutingFilter(f RequestFilter) { r.routingFilters = append(r.routingFilters, f) }

// AddResponseFilter registers a filter that runs on every response,
// whether produced by a handler or by an error/fallback handler.
func (r *Router) AddResponseFilter(f ResponseFilter) { r.responseFilters = append(r.responseFilters, f) }

// AddRoute registers a handler against a compiled routeable.
func (r *Router) AddRoute(ro *Routeable, h Handler) {
	r.routeables = append(r.routeables, ro)
	r.routes = append(r.routes, route{routeable: ro, handler: h})
}

func (r *Router) callErrorHandler(rc *ctx.RequestContext, err error) (*httpx.Response, error) {
	rc.ForceConnectionClose()
	return r.errorHandler(rc, err)
}

func (r *Router) callResponseFilters(rc *ctx.RequestContext, resp *httpx.Response) (*httpx.Response, error) {
	var err error
	for _, f := range r.responseFilters {
		resp, err = f(rc, resp)
		if err != nil {
			resp, err = r.callErrorHandler(rc, err)
			if err != nil {
				return nil, err
			}
		}
	}
	return resp, nil
}

// Serve runs the full dispatch chain for rc: router filter, pre-routing
// filters, route matching, routing filters, handler, error handling, and
// finally response filters (mirrors serve_outer/serve_inner). A nil
// response with a nil error means this router declines the request
// entirely (its RouterFilter returned false).
func (r *Router) Serve(rc *ctx.RequestContext) (*httpx.Response, error) {
	if r.routerFilter != nil {
		ok, err := r.routerFilter(rc)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	resp, err := r.serveInner(rc)
	if err != nil {
		resp, err = r.callErrorHandler(rc, err)
		if err != nil {
			return nil, err
		}
	}
	return r.callResponseFilters(rc, resp)
}

func (r *Router) serveInner(rc *ctx.RequestContext) (*httpx.Response, error) {
	for _, f := range r.preRoutingFilters {
		resp, err := f(rc)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}

	best := Decision{Kind: DecisionPathMismatch}
	var bestRoute *route
	for i := range r.routes {
		d := r.routes[i].routeable.Matches(rc)
		if !best.Less(d) {
			continue
		}
		best = d
		if d.Kind == DecisionMatch {
			bestRoute = &r.routes[i]
			if d.Q == qvalue.Max {
				break
			}
		}
	}

	if bestRoute != nil {
		rc.SetRoutedPath(bestRoute.routeable.Path)
		for k, v := range best.PathParams {
			rc.SetPathParam(k, v)
		}

		for _, f := range r.routingFilters {
			resp, err := f(rc)
			if err != nil {
				return nil, err
			}
			if resp != nil {
				return resp, nil
			}
		}

		return bestRoute.handler(rc)
	}

	return r.invokeFallback(rc, best)
}

func (r *Router) invokeFallback(rc *ctx.RequestContext, best Decision) (*httpx.Response, error) {
	switch best.Kind {
	case DecisionPathMismatch:
		return r.notFoundHandler(rc, r.routeables)
	case DecisionMethodMismatch:
		return r.methodNotAllowedHandler(rc, r.routeables)
	case DecisionMimeMismatch:
		return r.unsupportedMediaHandler(rc, r.routeables)
	case DecisionAcceptMismatch:
		return r.notAcceptableHandler(rc, r.routeables)
	default:
		panic("routing: invokeFallback called with a Match decision")
	}
}
