package builtinhandlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tiihttp/tii/internal/ctx"
	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/log"
	"github.com/tiihttp/tii/internal/mime"
	"github.com/tiihttp/tii/internal/routing"
)

func reqCtx(method httpx.Method, p string) *ctx.RequestContext {
	head := &httpx.RequestHead{Method: method, Path: p, Accept: mime.DefaultAccept()}
	return ctx.New("peer", "local", head, nil, nil)
}

func TestNotFound(t *testing.T) {
	h := New(log.Nop())
	resp, err := h.NotFound(reqCtx(httpx.MethodGet, "/missing"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status.Code() != 404 {
		t.Fatalf("got %d", resp.Status.Code())
	}
}

func TestMethodNotAllowedListsAllowedMethods(t *testing.T) {
	h := New(log.Nop())
	getRoute, _ := routing.NewRouteable("/x", httpx.MethodGet, nil, nil)
	postRoute, _ := routing.NewRouteable("/x", httpx.MethodPost, nil, nil)
	otherRoute, _ := routing.NewRouteable("/y", httpx.MethodPut, nil, nil)

	resp, err := h.MethodNotAllowed(reqCtx(httpx.MethodPut, "/x"), []*routing.Routeable{getRoute, postRoute, otherRoute})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status.Code() != 405 {
		t.Fatalf("got %d", resp.Status.Code())
	}
	allow, ok := resp.Headers.Get("Allow")
	if !ok {
		t.Fatal("expected Allow header")
	}
	if allow != "GET, POST" {
		t.Fatalf("got %q", allow)
	}
}

func TestStaticFileServesExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	handler := StaticFile(dir)
	rc := reqCtx(httpx.MethodGet, "/hello.txt")
	resp, err := handler(rc)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status.Code() != 200 {
		t.Fatalf("got %d", resp.Status.Code())
	}
	ct, _ := resp.Headers.Get("Content-Type")
	if ct != "text/plain" {
		t.Fatalf("got %q", ct)
	}
}

func TestStaticFileRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	handler := StaticFile(dir)
	rc := reqCtx(httpx.MethodGet, "/../etc/passwd")
	resp, err := handler(rc)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status.Code() != 404 {
		t.Fatalf("expected 404 for path escape, got %d", resp.Status.Code())
	}
}

func TestStaticFileMissingFile(t *testing.T) {
	dir := t.TempDir()
	handler := StaticFile(dir)
	rc := reqCtx(httpx.MethodGet, "/nope.txt")
	resp, err := handler(rc)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status.Code() != 404 {
		t.Fatalf("got %d", resp.Status.Code())
	}
}
