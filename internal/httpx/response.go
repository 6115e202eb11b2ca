package httpx

import (
	"fmt"
	"io"
	"os"

	"github.com/tiihttp/tii/internal/mime"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/tiierr"
	"github.com/tiihttp/tii/internal/typesystem"
	"github.com/tiihttp/tii/internal/wire"
)

// BodyKind selects which of the response body shapes named in spec §3
// (data model: "Response ... fixed bytes, fixed string, fixed file,
// streaming ... chunked ... entity + serializer") a Response carries.
// FixedBytes also covers the fixed-string variant (a string is just
// bytes on the wire); Entity is resolved to FixedBytes by ResolveEntity
// once content negotiation has picked a media type, before WriteResponse
// ever sees the response.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyFixedBytes
	BodyFixedFile
	BodyStreaming
	BodyChunked
	BodyEntity
)

// StreamFunc is a streaming body's write callback, invoked lazily inside
// WriteResponse (spec §3: "streaming bodies execute their callback lazily
// inside write_to").
type StreamFunc func(w io.Writer) error

// EntitySerializer renders entity as bytes for the given negotiated
// media type. Mirrors the original's Serializer<T> trait
// (response_entity.rs), minus the generic type parameter Rust needed to
// thread T through a trait object: Go callers already hold the concrete
// entity value, so a plain func(MediaType, any) suffices.
type EntitySerializer func(m mime.MediaType, entity any) ([]byte, error)

// ResponseBody describes one concrete body shape plus an optional gzip
// wrap, which per spec §3 "can wrap any body shape".
type ResponseBody struct {
	Kind BodyKind

	Bytes []byte

	File     *os.File
	FileSize int64

	Stream StreamFunc

	// ChunkSource, when Kind is BodyChunked, is copied through a
	// wire.ChunkWriter.
	ChunkSource io.Reader

	// Entity, EntityProduces and EntitySerialize are set when Kind is
	// BodyEntity (spec §3: "entity + serializer (deferred serialization
	// against the negotiated media type)"). Entity is the domain value a
	// response filter may still want to inspect or replace via
	// CastEntity before ResolveEntity consumes it; EntityProduces lists
	// the media types EntitySerialize can render into, in preference
	// order for ties.
	Entity          any
	EntityProduces  []mime.MediaType
	EntitySerialize EntitySerializer

	Gzip bool
}

// Response is a status code, an ordered header list, and an optional
// body (spec §3 data model).
type Response struct {
	Status  Status
	Headers HeaderList
	Body    *ResponseBody
}

// NewResponse builds an empty response with the given status.
func NewResponse(status Status) *Response {
	return &Response{Status: status}
}

// fileCopyBufferSize is the buffer size used to stream fixed-file bodies
// (spec §4.5: "for files, seek to zero then stream in a 64 KiB buffer").
const fileCopyBufferSize = 64 * 1024

// WriteResponse serializes resp onto s following the framing rules of
// spec §4.5. version is the request's declared HTTP version (governs the
// status line and whether 0.9's body-only framing applies); keepAlive is
// the connection-lifecycle decision the caller already made, which this
// function turns into the Connection header (forcing Close outright for
// a streaming body, since that body shape always closes the connection).
func WriteResponse(s stream.Stream, version Version, resp *Response, keepAlive bool) error {
	if resp.Headers.Has(HeaderConnection.String()) {
		return tiierr.NewUserError("endpoint set the reserved Connection header directly")
	}

	kind := BodyNone
	if resp.Body != nil {
		kind = resp.Body.Kind
	}
	if kind == BodyEntity {
		return tiierr.NewUserError("response body is an unresolved entity; call ResolveEntity before WriteResponse")
	}
	if kind == BodyStreaming {
		keepAlive = false
	}

	if version != Version09 {
		proto := fmt.Sprintf("HTTP/%d.%d", version.Major, version.Minor)
		if _, err := fmt.Fprintf(s, "%s %s\r\n", proto, resp.Status.StatusLine()); err != nil {
			return err
		}

		for _, f := range resp.Headers {
			if IsReservedResponseHeader(f.Name.String()) {
				continue
			}
			if _, err := fmt.Fprintf(s, "%s: %s\r\n", f.Name, f.Value); err != nil {
				return err
			}
		}

		if version == Version11 {
			connVal := "Close"
			if keepAlive {
				connVal = "Keep-Alive"
			}
			if _, err := fmt.Fprintf(s, "%s: %s\r\n", HeaderConnection, connVal); err != nil {
				return err
			}
		}

		gzipBody := resp.Body != nil && resp.Body.Gzip && kind != BodyNone
		if gzipBody {
			if _, err := fmt.Fprintf(s, "%s: gzip\r\n", HeaderContentEncoding); err != nil {
				return err
			}
			// Gzip changes the byte length of any fixed body, so a
			// gzip-wrapped response is always framed as chunked.
			if kind == BodyFixedBytes || kind == BodyFixedFile {
				kind = BodyChunked
			}
		}

		switch kind {
		case BodyChunked:
			if _, err := fmt.Fprintf(s, "%s: chunked\r\n", HeaderTransferEncoding); err != nil {
				return err
			}
		case BodyFixedBytes:
			if _, err := fmt.Fprintf(s, "%s: %d\r\n", HeaderContentLength, len(resp.Body.Bytes)); err != nil {
				return err
			}
		case BodyFixedFile:
			if _, err := fmt.Fprintf(s, "%s: %d\r\n", HeaderContentLength, resp.Body.FileSize); err != nil {
				return err
			}
		case BodyStreaming:
			// no length header, no chunking
		case BodyNone:
			if _, err := fmt.Fprintf(s, "%s: 0\r\n", HeaderContentLength); err != nil {
				return err
			}
		}

		if _, err := io.WriteString(s, "\r\n"); err != nil {
			return err
		}

		if err := writeBody(s, kind, resp.Body, gzipBody); err != nil {
			return err
		}
		return s.Flush()
	}

	// HTTP/0.9: body bytes only, no status line, no headers.
	if kind == BodyFixedBytes {
		if _, err := s.Write(resp.Body.Bytes); err != nil {
			return err
		}
	} else if kind == BodyFixedFile {
		if err := streamFile(s, resp.Body); err != nil {
			return err
		}
	} else if kind == BodyStreaming {
		if err := resp.Body.Stream(s); err != nil {
			return err
		}
	}
	return s.Flush()
}

func writeBody(w io.Writer, kind BodyKind, body *ResponseBody, gzipped bool) error {
	switch kind {
	case BodyNone:
		return nil

	case BodyFixedBytes:
		dst := w
		if gzipped {
			gz := wire.NewGzipWriter(w)
			dst = gz
			defer gz.Close()
		}
		_, err := dst.Write(body.Bytes)
		return err

	case BodyFixedFile:
		dst := w
		if gzipped {
			gz := wire.NewGzipWriter(w)
			dst = gz
			defer gz.Close()
		}
		return streamFile(dst, body)

	case BodyStreaming:
		dst := w
		if gzipped {
			gz := wire.NewGzipWriter(w)
			dst = gz
			defer gz.Close()
		}
		return body.Stream(dst)

	case BodyChunked:
		cw := wire.NewChunkWriter(w)
		dst := io.Writer(cw)
		var gz *wire.GzipWriter
		if gzipped {
			gz = wire.NewGzipWriter(cw)
			dst = gz
		}
		var copyErr error
		if body.ChunkSource != nil {
			_, copyErr = io.Copy(dst, body.ChunkSource)
		} else if body.Stream != nil {
			copyErr = body.Stream(dst)
		} else if body.Kind == BodyFixedBytes {
			_, copyErr = dst.Write(body.Bytes)
		} else if body.Kind == BodyFixedFile {
			copyErr = streamFile(dst, body)
		}
		if gz != nil {
			if err := gz.Close(); err != nil && copyErr == nil {
				copyErr = err
			}
		}
		if copyErr != nil {
			cw.Close()
			return copyErr
		}
		return cw.Close()
	}
	return nil
}

// streamFile seeks to the start of body.File and copies exactly
// body.FileSize bytes through a 64 KiB buffer, detecting a mid-transfer
// size change (spec §4.5: "for files, seek to zero then stream in a 64
// KiB buffer, detect mid-transfer size change").
func streamFile(w io.Writer, body *ResponseBody) error {
	if _, err := body.File.Seek(0, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, fileCopyBufferSize)
	n, err := io.CopyBuffer(w, io.LimitReader(body.File, body.FileSize), buf)
	if err != nil {
		return err
	}
	if n != body.FileSize {
		return tiierr.NewUserError(fmt.Sprintf("file body changed size mid-transfer: expected %d, sent %d", body.FileSize, n))
	}
	return nil
}

// NewFixedBytesResponse builds a Response with a fixed in-memory body.
func NewFixedBytesResponse(status Status, body []byte) *Response {
	return &Response{Status: status, Body: &ResponseBody{Kind: BodyFixedBytes, Bytes: body}}
}

// NewFixedStringResponse builds a Response with a fixed in-memory string
// body (spec §3: "fixed string" is a distinct shape from "fixed bytes"
// purely at the construction API; on the wire both are a byte sequence).
func NewFixedStringResponse(status Status, body string) *Response {
	return NewFixedBytesResponse(status, []byte(body))
}

// NewFileResponse builds a Response streaming f's first size bytes.
func NewFileResponse(status Status, f *os.File, size int64) *Response {
	return &Response{Status: status, Body: &ResponseBody{Kind: BodyFixedFile, File: f, FileSize: size}}
}

// NewStreamingResponse builds a Response whose body is produced lazily
// by fn; the connection is always closed after such a response.
func NewStreamingResponse(status Status, fn StreamFunc) *Response {
	return &Response{Status: status, Body: &ResponseBody{Kind: BodyStreaming, Stream: fn}}
}

// NewChunkedResponse builds a Response whose body is copied from src
// through chunked transfer-encoding.
func NewChunkedResponse(status Status, src io.Reader) *Response {
	return &Response{Status: status, Body: &ResponseBody{Kind: BodyChunked, ChunkSource: src}}
}

// NewEntityResponse builds a Response carrying a domain value deferred
// for serialization against whatever media type content negotiation
// picks, rather than bytes already rendered to one shape (spec §3:
// "entity + serializer"). produces lists the media types serialize can
// render, most-preferred first for q-value ties; ResolveEntity performs
// the actual negotiation and serialization later, once the request's
// Accept header is known.
func NewEntityResponse(status Status, entity any, produces []mime.MediaType, serialize EntitySerializer) *Response {
	return &Response{Status: status, Body: &ResponseBody{
		Kind:            BodyEntity,
		Entity:          entity,
		EntityProduces:  produces,
		EntitySerialize: serialize,
	}}
}

// CastEntity casts resp's entity to DST through ts, for a response
// filter that wants to inspect or transform it before ResolveEntity
// consumes it (spec §9: "filters that want to inspect/transform the
// response entity use a registry ... look-ups are by (TypeId, TypeId)").
// Returns an error if resp has no entity body, or if ts has no cast
// registered for its dynamic type.
func CastEntity[DST any](resp *Response, ts *typesystem.Registry) (DST, error) {
	var zero DST
	if resp.Body == nil || resp.Body.Kind != BodyEntity {
		return zero, tiierr.NewTypeSystemError("response has no entity body to cast")
	}
	return typesystem.Cast[DST](ts, resp.Body.Entity)
}

// ResolveEntity negotiates a media type for resp's entity body against
// accept and replaces it with the serialized BodyFixedBytes result,
// setting Content-Type. It is a no-op for any other body kind. Must run
// before WriteResponse; the server calls it once per response, after
// response filters have had their chance to inspect/replace the entity
// via CastEntity.
func ResolveEntity(resp *Response, accept mime.Accept) error {
	if resp.Body == nil || resp.Body.Kind != BodyEntity {
		return nil
	}
	body := resp.Body
	mt, ok := accept.BestType(body.EntityProduces)
	if !ok {
		return tiierr.NewUserError("no declared entity media type satisfies the request's Accept header")
	}
	rendered, err := body.EntitySerialize(mt, body.Entity)
	if err != nil {
		return err
	}
	if err := resp.SetHeader(HeaderContentType.String(), mt.String()); err != nil {
		return err
	}
	gzip := body.Gzip
	resp.Body = &ResponseBody{Kind: BodyFixedBytes, Bytes: rendered, Gzip: gzip}
	return nil
}

// WithGzip marks r's body to be gzip-compressed on the wire.
func (r *Response) WithGzip() *Response {
	if r.Body != nil {
		r.Body.Gzip = true
	}
	return r
}

// SetHeader is the response-side equivalent of RequestHead.SetHeader: it
// refuses the headers the writer owns exclusively (spec §3: "Content-
// Length, Transfer-Encoding, Trailer are reserved").
func (r *Response) SetHeader(name, value string) error {
	if IsReservedResponseHeader(name) {
		return tiierr.NewUserError("header " + name + " is reserved for the response writer")
	}
	r.Headers.Add(name, value)
	return nil
}
