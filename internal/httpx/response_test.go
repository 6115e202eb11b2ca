package httpx

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/tiihttp/tii/internal/mime"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/typesystem"
)

func captureWrite(t *testing.T, version Version, resp *Response, keepAlive bool) string {
	t.Helper()
	left, right := stream.NewLoopbackPair()
	if err := WriteResponse(right, version, resp, keepAlive); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	io.Copy(&buf, left)
	return buf.String()
}

func TestWriteResponseFixedBytes(t *testing.T) {
	resp := NewFixedStringResponse(StatusOK, "hello world")
	resp.SetHeader("Content-Type", "text/plain")

	got := captureWrite(t, Version11, resp, true)

	if !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("bad status line: %q", got)
	}
	if !strings.Contains(got, "Content-Type: text/plain\r\n") {
		t.Fatalf("missing Content-Type: %q", got)
	}
	if !strings.Contains(got, "Content-Length: 11\r\n") {
		t.Fatalf("missing Content-Length: %q", got)
	}
	if !strings.Contains(got, "Connection: Keep-Alive\r\n") {
		t.Fatalf("missing Connection: %q", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\nhello world") {
		t.Fatalf("body missing or malformed: %q", got)
	}
}

func TestWriteResponseConnectionCloseWhenNotKeepAlive(t *testing.T) {
	resp := NewFixedStringResponse(StatusOK, "x")
	got := captureWrite(t, Version11, resp, false)
	if !strings.Contains(got, "Connection: Close\r\n") {
		t.Fatalf("expected Connection: Close, got %q", got)
	}
}

func TestWriteResponseChunked(t *testing.T) {
	resp := NewChunkedResponse(StatusOK, strings.NewReader("Wikipedia"))
	got := captureWrite(t, Version11, resp, true)

	if !strings.Contains(got, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("missing Transfer-Encoding: %q", got)
	}
	if !strings.HasSuffix(got, "0\r\n\r\n") {
		t.Fatalf("missing terminal chunk: %q", got)
	}
}

func TestWriteResponseStreamingForcesClose(t *testing.T) {
	resp := NewStreamingResponse(StatusOK, func(w io.Writer) error {
		_, err := w.Write([]byte("abc"))
		return err
	})
	got := captureWrite(t, Version11, resp, true)
	if !strings.Contains(got, "Connection: Close\r\n") {
		t.Fatalf("expected forced Connection: Close for streaming body: %q", got)
	}
	if !strings.Contains(got, "\r\n\r\nabc") {
		t.Fatalf("missing streamed body: %q", got)
	}
	if strings.Contains(got, "Content-Length") {
		t.Fatalf("streaming body must not declare Content-Length: %q", got)
	}
}

func TestWriteResponseNoBodyIsContentLengthZero(t *testing.T) {
	resp := NewResponse(StatusNoContent)
	got := captureWrite(t, Version11, resp, true)
	if !strings.Contains(got, "Content-Length: 0\r\n") {
		t.Fatalf("expected Content-Length: 0, got %q", got)
	}
}

func TestWriteResponseRejectsUserSetConnectionHeader(t *testing.T) {
	resp := NewFixedStringResponse(StatusOK, "x")
	resp.Headers.Add("Connection", "keep-alive")
	_, right := stream.NewLoopbackPair()
	if err := WriteResponse(right, Version11, resp, true); err == nil {
		t.Fatal("expected error for user-set Connection header")
	}
}

func TestWriteResponseHTTP09OmitsStatusLineAndHeaders(t *testing.T) {
	resp := NewFixedStringResponse(StatusOK, "abc")
	got := captureWrite(t, Version09, resp, false)
	if got != "abc" {
		t.Fatalf("expected body-only output for HTTP/0.9, got %q", got)
	}
}

func TestWriteResponseGzipFixedBodyForcesChunked(t *testing.T) {
	resp := NewFixedStringResponse(StatusOK, strings.Repeat("a", 100)).WithGzip()
	got := captureWrite(t, Version11, resp, true)
	if !strings.Contains(got, "Content-Encoding: gzip\r\n") {
		t.Fatalf("missing Content-Encoding: %q", got)
	}
	if !strings.Contains(got, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("expected gzip to force chunked framing: %q", got)
	}
}

type greeting struct {
	Name string
}

func jsonSerializer(m mime.MediaType, entity any) ([]byte, error) {
	g := entity.(greeting)
	return []byte(`{"name":"` + g.Name + `"}`), nil
}

func TestResolveEntityPicksNegotiatedMediaTypeAndSerializes(t *testing.T) {
	resp := NewEntityResponse(StatusOK, greeting{Name: "vole"},
		[]mime.MediaType{mime.ApplicationJSON, mime.TextPlain}, jsonSerializer)

	accept, ok := mime.ParseAccept("application/json")
	if !ok {
		t.Fatal("failed to parse Accept header")
	}
	if err := ResolveEntity(resp, accept); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Body.Kind != BodyFixedBytes {
		t.Fatalf("expected BodyFixedBytes after resolution, got %v", resp.Body.Kind)
	}
	if string(resp.Body.Bytes) != `{"name":"vole"}` {
		t.Fatalf("got body %q", resp.Body.Bytes)
	}
	if ct, _ := resp.Headers.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("got Content-Type %q", ct)
	}
}

func TestResolveEntityFailsWhenNoAcceptableType(t *testing.T) {
	resp := NewEntityResponse(StatusOK, greeting{Name: "vole"},
		[]mime.MediaType{mime.ApplicationJSON}, jsonSerializer)

	accept, ok := mime.ParseAccept("image/png")
	if !ok {
		t.Fatal("failed to parse Accept header")
	}
	if err := ResolveEntity(resp, accept); err == nil {
		t.Fatal("expected error when no declared entity type satisfies Accept")
	}
}

func TestWriteResponseRejectsUnresolvedEntity(t *testing.T) {
	resp := NewEntityResponse(StatusOK, greeting{Name: "vole"},
		[]mime.MediaType{mime.ApplicationJSON}, jsonSerializer)
	_, right := stream.NewLoopbackPair()
	if err := WriteResponse(right, Version11, resp, true); err == nil {
		t.Fatal("expected error writing an unresolved entity body")
	}
}

func TestCastEntityUsesTypeSystem(t *testing.T) {
	b := typesystem.NewBuilder()
	typesystem.RegisterCast(b, func(g greeting) (string, bool) { return g.Name, true })
	ts := b.Build()

	resp := NewEntityResponse(StatusOK, greeting{Name: "vole"}, nil, jsonSerializer)

	name, err := CastEntity[string](resp, ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "vole" {
		t.Fatalf("got %q", name)
	}
}

func TestCastEntityOnNonEntityBody(t *testing.T) {
	resp := NewFixedStringResponse(StatusOK, "x")
	if _, err := CastEntity[string](resp, nil); err == nil {
		t.Fatal("expected error casting a non-entity body")
	}
}
