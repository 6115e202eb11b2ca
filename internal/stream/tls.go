package stream

import "crypto/tls"

// NewTLSStream wraps an already-accepted *tls.Conn as a Stream. The TLS
// handshake and session management themselves are explicitly out of
// scope (spec §1: "we consume an external TLS session object exposing
// duplex read/write with timeouts") — this is just the adapter from that
// object onto the same Stream interface every other transport uses.
func NewTLSStream(conn *tls.Conn) Stream {
	return NewNetStream(conn)
}
