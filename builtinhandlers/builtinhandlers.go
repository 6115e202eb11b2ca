// Package builtinhandlers provides the default fallback handlers used
// when a request fails to route, plus a static-file serving endpoint,
// grounded on default_functions.rs's default_not_found_handler et al.
package builtinhandlers

import (
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tiihttp/tii/internal/ctx"
	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/mime"
	"github.com/tiihttp/tii/internal/routing"
)

// Handlers bundles the default fallback handlers with the logger they
// report through, mirroring default_functions.rs's handlers (which log
// via the original implementation's info_log!/error_log! macros) adapted
// to a struct since Go has no ambient logging macro.
type Handlers struct {
	Log zerolog.Logger
}

// New builds a Handlers set that logs through logger.
func New(logger zerolog.Logger) *Handlers {
	return &Handlers{Log: logger}
}

// NotFound answers with an empty 404 (spec: "404 on path mismatch").
func (h *Handlers) NotFound(rc *ctx.RequestContext, _ []*routing.Routeable) (*httpx.Response, error) {
	h.Log.Info().Str("method", rc.RequestHead().Method.String()).Str("path", rc.RequestHead().Path).Msg("not found")
	return httpx.NewResponse(httpx.StatusNotFound), nil
}

// MethodNotAllowed answers with an empty 405 plus an Allow header listing
// every method declared by a route whose path matched (spec §4.4 step 3:
// "405, emit Allow header listing the methods declared for matching
// paths").
func (h *Handlers) MethodNotAllowed(rc *ctx.RequestContext, routes []*routing.Routeable) (*httpx.Response, error) {
	seen := make(map[string]bool)
	var methods []string
	for _, ro := range routes {
		d := ro.Matches(rc)
		if d.Kind == routing.DecisionPathMismatch {
			continue
		}
		m := ro.Method.String()
		if !seen[m] {
			seen[m] = true
			methods = append(methods, m)
		}
	}
	resp := httpx.NewResponse(httpx.StatusMethodNotAllowed)
	if len(methods) > 0 {
		resp.SetHeader(httpx.HeaderAllow.String(), strings.Join(methods, ", "))
	}
	return resp, nil
}

// UnsupportedMediaType answers with an empty 415 (spec: "415 on
// content-type mismatch").
func (h *Handlers) UnsupportedMediaType(_ *ctx.RequestContext, _ []*routing.Routeable) (*httpx.Response, error) {
	return httpx.NewResponse(httpx.StatusUnsupportedMediaType), nil
}

// NotAcceptable answers with an empty 406 (spec: "406 on accept
// mismatch").
func (h *Handlers) NotAcceptable(_ *ctx.RequestContext, _ []*routing.Routeable) (*httpx.Response, error) {
	return httpx.NewResponse(httpx.StatusNotAcceptable), nil
}

// Error answers with an empty 500 and logs the error (mirrors
// default_error_handler, which also forces the connection closed via the
// caller in internal/routing before this ever runs).
func (h *Handlers) Error(rc *ctx.RequestContext, err error) (*httpx.Response, error) {
	h.Log.Error().Err(err).Str("method", rc.RequestHead().Method.String()).Str("path", rc.RequestHead().Path).Msg("internal server error")
	return httpx.NewResponse(httpx.StatusInternalServerError), nil
}

// StaticFile builds a Handler that serves files rooted at dir, rejecting
// any request path that would escape it, and sets Content-Type from the
// file extension via the MIME table.
func StaticFile(dir string) routing.Handler {
	return func(rc *ctx.RequestContext) (*httpx.Response, error) {
		rel, ok := rc.PathParam("rest")
		if !ok {
			rel = strings.TrimPrefix(rc.RequestHead().Path, "/")
		}
		clean := path.Clean("/" + rel)
		full := path.Join(dir, clean)
		if !strings.HasPrefix(full, path.Clean(dir)+"/") && full != path.Clean(dir) {
			return httpx.NewResponse(httpx.StatusNotFound), nil
		}

		f, err := os.Open(full)
		if err != nil {
			if os.IsNotExist(err) {
				return httpx.NewResponse(httpx.StatusNotFound), nil
			}
			return nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		if info.IsDir() {
			f.Close()
			return httpx.NewResponse(httpx.StatusNotFound), nil
		}

		resp := httpx.NewFileResponse(httpx.StatusOK, f, info.Size())
		resp.SetHeader(httpx.HeaderContentType.String(), mime.FromExtension(path.Ext(full)).String())
		return resp, nil
	}
}
