package ctx

import (
	"testing"

	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/typesystem"
)

func TestReadAssignsIncreasingIDs(t *testing.T) {
	l1, r1 := stream.NewLoopbackPair()
	l1.Write([]byte("GET /a HTTP/1.1\r\nHost: x\r\n\r\n"))
	l1.Flush()
	rc1, err := Read(r1, nil, httpx.DefaultHeadParseLimits())
	if err != nil {
		t.Fatal(err)
	}

	l2, r2 := stream.NewLoopbackPair()
	l2.Write([]byte("GET /b HTTP/1.1\r\nHost: x\r\n\r\n"))
	l2.Flush()
	rc2, err := Read(r2, nil, httpx.DefaultHeadParseLimits())
	if err != nil {
		t.Fatal(err)
	}

	if rc2.ID() <= rc1.ID() {
		t.Fatalf("expected increasing ids, got %d then %d", rc1.ID(), rc2.ID())
	}
}

func TestReadHTTP09ForcesConnectionClose(t *testing.T) {
	l, r := stream.NewLoopbackPair()
	l.Write([]byte("GET /\r\n"))
	l.Flush()
	rc, err := Read(r, nil, httpx.DefaultHeadParseLimits())
	if err != nil {
		t.Fatal(err)
	}
	if !rc.IsConnectionCloseForced() {
		t.Fatal("expected forced close for HTTP/0.9")
	}
	if rc.RequestBody() != nil {
		t.Fatal("expected no body for HTTP/0.9")
	}
}

func TestReadWithFixedLengthBody(t *testing.T) {
	l, r := stream.NewLoopbackPair()
	l.Write([]byte("POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"))
	l.Flush()
	rc, err := Read(r, nil, httpx.DefaultHeadParseLimits())
	if err != nil {
		t.Fatal(err)
	}
	if rc.RequestBody() == nil {
		t.Fatal("expected a body")
	}
	data, err := rc.RequestBody().ReadToEnd()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
}

func TestPathParams(t *testing.T) {
	rc := New("peer", "local", &httpx.RequestHead{}, nil, nil)
	if _, ok := rc.PathParam("id"); ok {
		t.Fatal("expected no path param before SetPathParam")
	}
	rc.SetPathParam("id", "42")
	v, ok := rc.PathParam("id")
	if !ok || v != "42" {
		t.Fatalf("got %q %v", v, ok)
	}
	params := rc.PathParams()
	if params["id"] != "42" {
		t.Fatalf("got %v", params)
	}
}

func TestProperties(t *testing.T) {
	rc := New("peer", "local", &httpx.RequestHead{}, nil, nil)
	if rc.HasProperty("k") {
		t.Fatal("expected no property initially")
	}
	if old := rc.SetProperty("k", 7); old != nil {
		t.Fatalf("expected nil old value, got %v", old)
	}
	v, ok := rc.Property("k")
	if !ok || v.(int) != 7 {
		t.Fatalf("got %v %v", v, ok)
	}
	if old := rc.RemoveProperty("k"); old.(int) != 7 {
		t.Fatalf("got %v", old)
	}
	if rc.HasProperty("k") {
		t.Fatal("expected property removed")
	}
}

type widget struct{ name string }

func TestCastPropertyAppliesTypeSystem(t *testing.T) {
	b := typesystem.NewBuilder()
	typesystem.RegisterCast(b, func(w widget) (string, bool) { return w.name, true })

	rc := New("peer", "local", &httpx.RequestHead{}, nil, nil)
	rc.SetTypeSystem(b.Build())
	rc.SetProperty("w", widget{name: "cog"})

	got, err := CastProperty[string](rc, "w")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "cog" {
		t.Fatalf("got %q", got)
	}
}

func TestCastPropertyMissingKey(t *testing.T) {
	rc := New("peer", "local", &httpx.RequestHead{}, nil, nil)
	if _, err := CastProperty[string](rc, "missing"); err == nil {
		t.Fatal("expected error for missing property")
	}
}

func TestCastPropertyNoTypeSystemConfigured(t *testing.T) {
	rc := New("peer", "local", &httpx.RequestHead{}, nil, nil)
	rc.SetProperty("w", widget{name: "cog"})
	if _, err := CastProperty[string](rc, "w"); err == nil {
		t.Fatal("expected error when no type system is configured")
	}
}

func TestRoutedPath(t *testing.T) {
	rc := New("peer", "local", &httpx.RequestHead{}, nil, nil)
	if rc.RoutedPath() != "" {
		t.Fatalf("expected empty routed path before routing, got %q", rc.RoutedPath())
	}
	rc.SetRoutedPath("/users/{id}")
	if rc.RoutedPath() != "/users/{id}" {
		t.Fatalf("got %q", rc.RoutedPath())
	}
}

func TestForceConnectionClose(t *testing.T) {
	rc := New("peer", "local", &httpx.RequestHead{}, nil, nil)
	if rc.IsConnectionCloseForced() {
		t.Fatal("expected not forced initially")
	}
	rc.ForceConnectionClose()
	if !rc.IsConnectionCloseForced() {
		t.Fatal("expected forced after call")
	}
}
