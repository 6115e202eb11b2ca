package httpx

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/tiierr"
	"github.com/tiihttp/tii/internal/wire"
)

// RequestBody is the shared, interior-mutable cursor over a request body
// (spec §3 data model). Once a read produces an error, every subsequent
// read fails with the same broken-pipe-kind error (spec: "Once an error
// is produced, subsequent reads must fail with a broken-pipe kind").
type RequestBody struct {
	mu          sync.Mutex
	r           io.Reader
	knownLength int64 // -1 when the decoded length is unknown (chunked, gzip)
	remaining   int64

	broken    bool
	brokenErr error
}

// Remaining returns the number of bytes left to read and whether the
// total length is known (spec §3: "remaining() (known-length only)").
func (b *RequestBody) Remaining() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.knownLength < 0 {
		return 0, false
	}
	return b.remaining, true
}

// Read implements io.Reader with the sticky broken-pipe behavior.
func (b *RequestBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken {
		return 0, b.brokenErr
	}
	n, err := b.r.Read(p)
	if b.knownLength >= 0 {
		b.remaining -= int64(n)
	}
	if err != nil && err != io.EOF {
		b.broken = true
		b.brokenErr = fmt.Errorf("tii: body stream broken: %w", io.ErrClosedPipe)
		return n, b.brokenErr
	}
	return n, err
}

// ReadExact fills buf completely or returns an error (spec §3: "read_exact").
func (b *RequestBody) ReadExact(buf []byte) error {
	_, err := io.ReadFull(b, buf)
	return err
}

// ReadToEnd reads the whole remaining body into memory (spec §3:
// "read_to_end").
func (b *RequestBody) ReadToEnd() ([]byte, error) {
	return io.ReadAll(b)
}

// ReadToVec reads up to limit bytes, returning an error if the body
// exceeds it (spec §3: "read_to_vec").
func (b *RequestBody) ReadToVec(limit int64) ([]byte, error) {
	lr := io.LimitReader(b, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, tiierr.NewUserError("request body exceeds configured limit")
	}
	return data, nil
}

// NewRequestBody implements the selection algorithm of spec §4.3,
// returning (nil, forceClose, nil) when the request declares no body.
func NewRequestBody(s stream.Stream, head *RequestHead) (*RequestBody, bool, error) {
	te, hasTE := head.Headers.Get(HeaderTransferEncoding.String())
	cl, hasCL := head.Headers.Get(HeaderContentLength.String())

	var body *RequestBody
	switch {
	case hasTE:
		if head.Version != Version11 || !strings.EqualFold(strings.TrimSpace(te), "chunked") {
			return nil, false, tiierr.NewParseError(tiierr.TransferEncodingNotSupported, []byte(te))
		}
		body = &RequestBody{r: wire.NewChunkReader(s, &head.Headers), knownLength: -1}

	case hasCL:
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return nil, false, tiierr.NewParseError(tiierr.InvalidContentLength, []byte(cl))
		}
		if n == 0 {
			return nil, false, nil
		}
		body = &RequestBody{r: io.LimitReader(s, n), knownLength: n, remaining: n}

	case head.Version == Version10:
		return nil, true, nil

	default:
		return nil, false, nil
	}

	if ce, ok := head.Headers.Get(HeaderContentEncoding.String()); ok {
		if !strings.EqualFold(strings.TrimSpace(ce), "gzip") {
			return nil, false, tiierr.NewParseError(tiierr.ContentEncodingNotSupported, []byte(ce))
		}
		gz, err := wire.NewGzipReader(body.r)
		if err != nil {
			return nil, false, err
		}
		body.r = gz
		body.knownLength = -1
	}

	return body, false, nil
}

// Drain reads and discards any remaining bytes of the body (spec §4.3:
// "On response write completion, remaining bytes of the request body
// must be drained unless the connection will be closed").
func Drain(b *RequestBody) error {
	if b == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, b)
	return err
}
