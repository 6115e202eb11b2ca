package stream

import (
	"bufio"
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/tiihttp/tii/internal/netx"
)

// pipeStream is an in-memory injected-pair Stream implementation, used by
// tests that drive the server engine without opening a real socket
// (component table: "Implementations: ... injected pair").
type pipeStream struct {
	readMu sync.Mutex
	br     *netx.CRLFFastReader

	writeMu sync.Mutex
	bw      *bufio.Writer

	peer, local string
}

// NewPipeStream builds a Stream that reads from r and writes to w,
// labeled with fake peer/local addresses for logging.
func NewPipeStream(r io.Reader, w io.Writer, peer, local string) Stream {
	return &pipeStream{
		br:    netx.NewCRLFFastReaderSize(r, bufSize),
		bw:    bufio.NewWriterSize(w, bufSize),
		peer:  peer,
		local: local,
	}
}

// NewLoopbackPair returns two connected pipeStreams, akin to net.Pipe but
// with independent buffering on each side so writes don't block on reads.
func NewLoopbackPair() (Stream, Stream) {
	a := &bytes.Buffer{}
	b := &bytes.Buffer{}
	mu := &sync.Mutex{}
	left := NewPipeStream(&lockedReader{buf: a, mu: mu}, &lockedWriter{buf: b, mu: mu}, "peer-left", "local-left")
	right := NewPipeStream(&lockedReader{buf: b, mu: mu}, &lockedWriter{buf: a, mu: mu}, "peer-right", "local-right")
	return left, right
}

type lockedReader struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() == 0 {
		return 0, io.EOF
	}
	return l.buf.Read(p)
}

type lockedWriter struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (s *pipeStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	return s.br.Read(p)
}

func (s *pipeStream) ReadExact(buf []byte) error {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	_, err := io.ReadFull(s.br, buf)
	return err
}

func (s *pipeStream) ReadUntil(delim byte, limit int) ([]byte, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	buf, err := s.br.ReadUntil(delim, limit)
	if err == netx.ErrLineTooLong {
		return nil, ErrLineTooLong
	}
	return buf, err
}

func (s *pipeStream) Available() int {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	return s.br.Buffered()
}

func (s *pipeStream) EnsureReadable() (bool, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	return s.br.EnsureReadable()
}

func (s *pipeStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.bw.Write(p)
}

func (s *pipeStream) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.bw.Flush()
}

func (s *pipeStream) SetReadTimeout(time.Duration) error  { return nil }
func (s *pipeStream) SetWriteTimeout(time.Duration) error { return nil }
func (s *pipeStream) PeerAddr() string                    { return s.peer }
func (s *pipeStream) LocalAddr() string                   { return s.local }
func (s *pipeStream) Close() error                        { return nil }
