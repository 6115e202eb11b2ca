package netx

import (
	"bufio"
	"errors"
	"io"
)

// ErrLineTooLong indicates that a line exceeded the configured maximum length.
var ErrLineTooLong = errors.New("crlf: line too long")

// ErrPeekBeyondCap indicates an attempt to peek beyond the internal buffer capacity.
var ErrPeekBeyondCap = errors.New("crlf: peek beyond internal capacity")

// ErrNoCRLF indicates a line was terminated by a bare LF (or EOF) where a
// strict CRLF terminator was required.
var ErrNoCRLF = errors.New("crlf: line not terminated by CRLF")

// DefaultBufSize defines the buffer size used by NewCRLFFastReader.
const DefaultBufSize = 4096

// CRLFFastReader provides efficient, safe CRLF line reading semantics for HTTP
// parsing. It behaves similarly to net/textproto.Reader, enforcing hard caps
// and RFC-compliant trimming, and doubles as the general-purpose buffered
// reader backing the stream package's duplex Stream implementations: every
// transport (TCP, Unix, TLS, in-memory pipe) funnels its reads through one of
// these so head-line parsing, arbitrary-delimiter reads, and raw body reads
// all share one buffer and one set of bounds checks.
type CRLFFastReader struct {
	br      *bufio.Reader // buffered source for efficient small reads
	bufSize int           // internal buffer size (for bounds checks)
}

// NewCRLFFastReader wraps r with a buffered reader of DefaultBufSize.
func NewCRLFFastReader(r io.Reader) *CRLFFastReader {
	return NewCRLFFastReaderSize(r, DefaultBufSize)
}

// NewCRLFFastReaderSize wraps r with a buffered reader of the given size.
func NewCRLFFastReaderSize(r io.Reader, size int) *CRLFFastReader {
	if size <= 0 {
		size = DefaultBufSize
	}
	return &CRLFFastReader{
		br:      bufio.NewReaderSize(r, size),
		bufSize: size,
	}
}

// Reset allows reusing the reader with a new underlying source.
func (r *CRLFFastReader) Reset(src io.Reader) {
	if r.br == nil {
		r.br = bufio.NewReaderSize(src, DefaultBufSize)
		r.bufSize = DefaultBufSize
		return
	}
	r.br.Reset(src)
}

// Read satisfies io.Reader by draining the internal buffer first, falling
// through to the underlying source once it is empty.
func (r *CRLFFastReader) Read(p []byte) (int, error) {
	return r.br.Read(p)
}

// ReadLine reads a single logical line, trimming the trailing CRLF or LF.
//
// It enforces a maximum total line length (max). If the accumulated line exceeds
// that limit, it returns ErrLineTooLong. A line longer than the internal buffer
// is accumulated across buffer fills, so isPrefix is true only together with
// ErrLineTooLong.
func (r *CRLFFastReader) ReadLine(max int) (line []byte, isPrefix bool, err error) {
	if max <= 0 {
		return nil, false, errors.New("crlf: invalid max value")
	}

	var buf []byte
	for {
		part, perr := r.br.ReadSlice('\n')
		// enforce limit before appending large chunks
		if len(buf)+len(part) > max {
			return nil, true, ErrLineTooLong
		}
		buf = append(buf, part...)

		switch {
		case perr == nil:
			// found newline
			n := len(buf)
			if n > 0 && buf[n-1] == '\n' {
				n--
				if n > 0 && buf[n-1] == '\r' {
					n--
				}
			}
			return buf[:n], false, nil

		case errors.Is(perr, bufio.ErrBufferFull):
			// continue accumulating until newline found or max exceeded
			continue

		case errors.Is(perr, io.EOF):
			if len(buf) == 0 {
				return nil, false, io.EOF
			}
			return buf, false, io.EOF

		default:
			return buf, false, perr
		}
	}
}

// ReadLineStrict behaves like ReadLine but requires the line to end in an
// exact CRLF sequence; a bare LF or an EOF before one is seen is reported as
// ErrNoCRLF. Request-head parsing (status line, header lines) uses this
// stricter variant; ReadLine's tolerance of a bare LF remains available for
// callers that want it.
func (r *CRLFFastReader) ReadLineStrict(max int) ([]byte, error) {
	if max <= 0 {
		return nil, errors.New("crlf: invalid max value")
	}

	var buf []byte
	for {
		part, perr := r.br.ReadSlice('\n')
		if len(buf)+len(part) > max {
			return nil, ErrLineTooLong
		}
		buf = append(buf, part...)

		switch {
		case perr == nil:
			n := len(buf)
			if n < 2 || buf[n-1] != '\n' || buf[n-2] != '\r' {
				return nil, ErrNoCRLF
			}
			return buf[:n-2], nil

		case errors.Is(perr, bufio.ErrBufferFull):
			continue

		case errors.Is(perr, io.EOF):
			return nil, io.EOF

		default:
			return nil, perr
		}
	}
}

// ReadUntil reads until delim is seen (inclusive) or limit bytes have been
// consumed without finding it, in which case it returns ErrLineTooLong.
func (r *CRLFFastReader) ReadUntil(delim byte, limit int) ([]byte, error) {
	var buf []byte
	for {
		part, err := r.br.ReadSlice(delim)
		if len(buf)+len(part) > limit {
			return nil, ErrLineTooLong
		}
		buf = append(buf, part...)
		if err == nil {
			return buf, nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, err
	}
}

// Buffered returns the number of bytes currently held in the internal
// buffer, available to read without blocking on the source.
func (r *CRLFFastReader) Buffered() int {
	return r.br.Buffered()
}

// EnsureReadable blocks until at least one byte is available without
// consuming it, distinguishing a clean EOF (false, nil) from a read error.
func (r *CRLFFastReader) EnsureReadable() (bool, error) {
	if r.br.Buffered() > 0 {
		return true, nil
	}
	_, err := r.br.Peek(1)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	return false, err
}

// Peek returns the next n bytes without advancing the reader.
//
// The returned slice is backed by the internal buffer and must not be modified.
// If n exceeds the buffer size or cannot be satisfied without growing it,
// ErrPeekBeyondCap is returned.
func (r *CRLFFastReader) Peek(n int) ([]byte, error) {
	if n > r.bufSize {
		return nil, ErrPeekBeyondCap
	}
	b, err := r.br.Peek(n)
	if err != nil && errors.Is(err, bufio.ErrBufferFull) {
		return nil, ErrPeekBeyondCap
	}
	return b, err
}
