package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/stream"
)

// magicString is the GUID RFC 6455 §1.3 specifies for computing
// Sec-WebSocket-Accept.
const magicString = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ErrHandshakeFailed is returned when the request does not carry a
// usable Sec-WebSocket-Key header.
var ErrHandshakeFailed = errors.New("ws: handshake failed")

// AcceptKey computes the Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key, per RFC 6455 §1.3. sha1+base64 are computed with
// the standard library: every repo in the retrieval pack that performs
// cryptographic hashing or base64 encoding does so with crypto/*
// and encoding/base64 rather than a third-party equivalent, and no pack
// repo imports one for this purpose.
func AcceptKey(secWebSocketKey string) string {
	h := sha1.New()
	h.Write([]byte(secWebSocketKey))
	h.Write([]byte(magicString))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Handshake performs the RFC 6455 opening handshake on s using the
// already-parsed request head, writing the 101 Switching Protocols
// response directly (its Connection/Upgrade framing does not fit the
// general-purpose response writer, which always resolves Connection to
// Keep-Alive or Close).
func Handshake(s stream.Stream, head *httpx.RequestHead) error {
	key, ok := head.Headers.Get(httpx.HeaderSecWebSocketKey.String())
	if !ok || key == "" {
		return ErrHandshakeFailed
	}

	accept := AcceptKey(key)

	proto := fmt.Sprintf("HTTP/%d.%d", head.Version.Major, head.Version.Minor)
	if _, err := fmt.Fprintf(s, "%s %s\r\n", proto, httpx.StatusSwitchingProtocols.StatusLine()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s, "%s: websocket\r\n", httpx.HeaderUpgrade); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s, "%s: Upgrade\r\n", httpx.HeaderConnection); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s, "%s: %s\r\n", httpx.HeaderSecWebSocketAccept, accept); err != nil {
		return err
	}
	if _, err := fmt.Fprint(s, "\r\n"); err != nil {
		return err
	}
	return s.Flush()
}
