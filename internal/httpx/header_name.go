package httpx

// HeaderName is a case-insensitive header field name: a well-known
// enumeration plus a custom-string escape hatch (spec component table
// row "Header & method types"). The canonical form is what gets written
// on the wire and what CanonicalHeaderKey would produce.
type HeaderName struct {
	canonical string
}

// Well-known header names referenced by the wire engine and routing core.
var (
	HeaderContentLength    = HeaderName{"Content-Length"}
	HeaderContentType      = HeaderName{"Content-Type"}
	HeaderContentEncoding  = HeaderName{"Content-Encoding"}
	HeaderTransferEncoding = HeaderName{"Transfer-Encoding"}
	HeaderTrailer          = HeaderName{"Trailer"}
	HeaderConnection       = HeaderName{"Connection"}
	HeaderAccept           = HeaderName{"Accept"}
	HeaderAllow            = HeaderName{"Allow"}
	HeaderHost             = HeaderName{"Host"}
	HeaderUpgrade          = HeaderName{"Upgrade"}
	HeaderSecWebSocketKey  = HeaderName{"Sec-WebSocket-Key"}
	HeaderSecWebSocketAccept = HeaderName{"Sec-WebSocket-Accept"}
)

// NewHeaderName canonicalizes an arbitrary header name, returning the
// well-known value if it matches one, or a custom value otherwise.
func NewHeaderName(name string) HeaderName {
	canonical := CanonicalHeaderKey(name)
	for _, wk := range wellKnownHeaderNames {
		if wk.canonical == canonical {
			return wk
		}
	}
	return HeaderName{canonical: canonical}
}

var wellKnownHeaderNames = []HeaderName{
	HeaderContentLength, HeaderContentType, HeaderContentEncoding,
	HeaderTransferEncoding, HeaderTrailer, HeaderConnection, HeaderAccept,
	HeaderAllow, HeaderHost, HeaderUpgrade, HeaderSecWebSocketKey,
	HeaderSecWebSocketAccept,
}

// String returns the canonical wire form of the header name.
func (h HeaderName) String() string { return h.canonical }

// reservedResponseHeaders are headers the response writer is authoritative
// for; endpoints/filters must not set them directly (spec §6, §4.5).
var reservedResponseHeaders = map[string]bool{
	HeaderContentLength.canonical:    true,
	HeaderTransferEncoding.canonical: true,
	HeaderTrailer.canonical:          true,
	HeaderConnection.canonical:       true,
}

// IsReservedResponseHeader reports whether name is a reserved response
// header that the writer owns exclusively.
func IsReservedResponseHeader(name string) bool {
	return reservedResponseHeaders[CanonicalHeaderKey(name)]
}

// immutableRequestHeaders cannot be modified by filters once parsed
// (spec data model: "RequestHead ... Mutable during filtering (with
// restricted mutations: Content-Length, Transfer-Encoding, Trailer
// cannot be modified...)").
var immutableRequestHeaders = map[string]bool{
	HeaderContentLength.canonical:    true,
	HeaderTransferEncoding.canonical: true,
	HeaderTrailer.canonical:          true,
}

// IsImmutableRequestHeader reports whether a filter may not modify name
// on the live RequestHead.
func IsImmutableRequestHeader(name string) bool {
	return immutableRequestHeaders[CanonicalHeaderKey(name)]
}
