package httpx

import (
	"strings"

	"github.com/tiihttp/tii/internal/mime"
	"github.com/tiihttp/tii/internal/stream"
	"github.com/tiihttp/tii/internal/tiierr"
)

// DefaultMaxHeadBytes is the default cap on a single status-line or
// header-line read (spec §4.2 step 1: "cap at configured max head
// buffer (default 8192)").
const DefaultMaxHeadBytes = 8192

// Version is the declared HTTP protocol version of a request (spec §4.2
// step 3: "HTTP/1.1 -> 1.1, HTTP/1.0 -> 1.0, absent -> 0.9").
type Version struct {
	Major int
	Minor int
}

var (
	Version09 = Version{0, 9}
	Version10 = Version{1, 0}
	Version11 = Version{1, 1}
)

// String renders the wire form, empty for 0.9 (which has no version token).
func (v Version) String() string {
	if v == Version09 {
		return ""
	}
	return "HTTP/1." + func() string {
		if v.Minor == 1 {
			return "1"
		}
		return "0"
	}()
}

// HeaderField is one (name, raw value) pair, preserving declaration order
// (spec §3: "ordered list of headers").
type HeaderField struct {
	Name  HeaderName
	Value string
}

// HeaderList is an ordered, case-insensitive multimap of header fields.
// Both RequestHead and Response use it so writer and filter logic share
// one "declared order, case-insensitive lookup" data structure (spec §3,
// §4.5: "headers in declared order").
type HeaderList []HeaderField

// Get returns the first value for name, case-insensitively.
func (h HeaderList) Get(name string) (string, bool) {
	canon := CanonicalHeaderKey(name)
	for _, f := range h {
		if f.Name.String() == canon {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value for name, in declaration order.
func (h HeaderList) Values(name string) []string {
	canon := CanonicalHeaderKey(name)
	var out []string
	for _, f := range h {
		if f.Name.String() == canon {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether name appears at least once.
func (h HeaderList) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Add appends a field, preserving any existing values for the same name.
func (h *HeaderList) Add(name, value string) {
	*h = append(*h, HeaderField{Name: NewHeaderName(name), Value: value})
}

// Set replaces every existing value for name with a single new one,
// keeping the position of the first prior occurrence (or appending if
// name is new). Returns a UserError if name is immutable on a request
// head (spec §3: "Content-Length, Transfer-Encoding, Trailer cannot be
// modified").
func (h *HeaderList) Set(name, value string) error {
	if IsImmutableRequestHeader(name) {
		return tiierr.NewUserError("header " + name + " cannot be modified by a filter")
	}
	canon := CanonicalHeaderKey(name)
	out := (*h)[:0]
	set := false
	for _, f := range *h {
		if f.Name.String() == canon {
			if !set {
				out = append(out, HeaderField{Name: NewHeaderName(name), Value: value})
				set = true
			}
			continue
		}
		out = append(out, f)
	}
	if !set {
		out = append(out, HeaderField{Name: NewHeaderName(name), Value: value})
	}
	*h = out
	return nil
}

// RequestHead is the parsed first line plus headers of an HTTP/1.x
// request (spec §3 data model). It is mutable during filtering subject
// to the restrictions on Content-Length/Transfer-Encoding/Trailer.
type RequestHead struct {
	Method  Method
	Version Version
	Path    string
	Query   []QueryParam
	Headers HeaderList

	Accept      mime.Accept
	ContentType *mime.MediaType

	RawStatusLine string
	Host          string
}

// HeadParseLimits controls the maximum size of the status line and of
// each header line read during parsing.
type HeadParseLimits struct {
	MaxHeadBytes int
}

// DefaultHeadParseLimits returns the spec-mandated default limits.
func DefaultHeadParseLimits() HeadParseLimits {
	return HeadParseLimits{MaxHeadBytes: DefaultMaxHeadBytes}
}

// ParseRequestHead implements the algorithm of spec §4.2 against any
// Stream implementation.
func ParseRequestHead(s stream.Stream, limits HeadParseLimits) (*RequestHead, error) {
	if limits.MaxHeadBytes <= 0 {
		limits.MaxHeadBytes = DefaultMaxHeadBytes
	}

	statusLine, err := readCRLFLine(s, limits.MaxHeadBytes, tiierr.StatusLineNoCRLF, tiierr.StatusLineTooLong)
	if err != nil {
		return nil, err
	}
	if !isASCIIPrintable(statusLine) {
		return nil, tiierr.NewParseError(tiierr.StatusLineContainsInvalidBytes, []byte(statusLine))
	}

	fields := strings.Split(statusLine, " ")
	if len(fields) == 1 {
		return nil, tiierr.NewParseError(tiierr.StatusLineNoWhitespace, []byte(statusLine))
	}
	if len(fields) > 3 {
		return nil, tiierr.NewParseError(tiierr.StatusLineTooManyWhitespaces, []byte(statusLine))
	}

	methodTok, target := fields[0], fields[1]
	method := ParseMethod(methodTok)

	version := Version09
	if len(fields) == 3 {
		switch fields[2] {
		case "HTTP/1.1":
			version = Version11
		case "HTTP/1.0":
			version = Version10
		default:
			return nil, tiierr.NewParseError(tiierr.HTTPVersionNotSupported, []byte(fields[2]))
		}
	}

	if version == Version09 && !method.Equal(MethodGet) {
		return nil, tiierr.NewParseError(tiierr.MethodNotSupportedByHTTPVersion, []byte(methodTok))
	}

	u, err := ParseRequestURI(target)
	if err != nil {
		return nil, tiierr.NewParseError(tiierr.InvalidPath, []byte(target))
	}

	head := &RequestHead{
		Method:        method,
		Version:       version,
		RawStatusLine: statusLine,
	}

	if u.Path == "*" {
		head.Path = "*"
	} else {
		decoded, err := ParsePath(u.Path)
		if err != nil {
			return nil, err
		}
		head.Path = decoded
	}

	params, err := ParseQueryParams(u.RawQuery)
	if err != nil {
		return nil, err
	}
	head.Query = params

	if u.Host != "" {
		head.Host = strings.ToLower(u.Host)
	}

	if version == Version09 {
		head.Accept = mime.DefaultAccept()
		return head, nil
	}

	for {
		line, err := readCRLFLine(s, limits.MaxHeadBytes, tiierr.HeaderLineNoCRLF, tiierr.HeaderLineTooLong)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		if !isASCIIPrintable(line) {
			return nil, tiierr.NewParseError(tiierr.HeaderLineIsNotUsAscii, []byte(line))
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return nil, tiierr.NewParseError(tiierr.HeaderValueMissing, []byte(line))
		}
		name := line[:colon]
		if name == "" {
			return nil, tiierr.NewParseError(tiierr.HeaderNameEmpty, []byte(line))
		}
		value := strings.Trim(line[colon+1:], " \t")
		if value == "" {
			return nil, tiierr.NewParseError(tiierr.HeaderValueEmpty, []byte(line))
		}
		head.Headers.Add(name, value)
	}

	if host, ok := head.Headers.Get(HeaderHost.String()); ok && head.Host == "" {
		head.Host = strings.ToLower(host)
	}

	if raw, ok := head.Headers.Get(HeaderAccept.String()); ok {
		accept, ok := mime.ParseAccept(raw)
		if !ok {
			return nil, tiierr.NewParseError(tiierr.IllegalAcceptHeaderValueSet, []byte(raw))
		}
		head.Accept = accept
	} else {
		head.Accept = mime.DefaultAccept()
	}

	if raw, ok := head.Headers.Get(HeaderContentType.String()); ok {
		ct, ok := mime.Parse(strings.TrimSpace(strings.SplitN(raw, ";", 2)[0]))
		if !ok {
			return nil, tiierr.NewParseError(tiierr.IllegalContentTypeHeaderValueSet, []byte(raw))
		}
		head.ContentType = &ct
	}

	return head, nil
}

// readCRLFLine reads through the Stream until LF, requiring an exact CRLF
// terminator and returning the line with it stripped.
func readCRLFLine(s stream.Stream, max int, noCRLFKind, tooLongKind tiierr.W) (string, error) {
	raw, err := s.ReadUntil('\n', max)
	if err == stream.ErrLineTooLong {
		return "", tiierr.NewParseError(tooLongKind, raw)
	}
	if err != nil {
		return "", err
	}
	if len(raw) < 2 || raw[len(raw)-1] != '\n' || raw[len(raw)-2] != '\r' {
		return "", tiierr.NewParseError(noCRLFKind, raw)
	}
	return string(raw[:len(raw)-2]), nil
}

func isASCIIPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// SetHeader applies a filter-originated header mutation, refusing the
// immutable Content-Length/Transfer-Encoding/Trailer trio and routing
// Accept/Content-Type through the parsed representation so it always
// round-trips (spec §3: "setting Accept/Content-Type must round-trip
// through the parsed form").
func (h *RequestHead) SetHeader(name, value string) error {
	if err := h.Headers.Set(name, value); err != nil {
		return err
	}
	canon := CanonicalHeaderKey(name)
	switch canon {
	case HeaderAccept.String():
		accept, ok := mime.ParseAccept(value)
		if !ok {
			return tiierr.NewUserError("invalid Accept header value: " + value)
		}
		h.Accept = accept
	case HeaderContentType.String():
		ct, ok := mime.Parse(strings.TrimSpace(strings.SplitN(value, ";", 2)[0]))
		if !ok {
			return tiierr.NewUserError("invalid Content-Type header value: " + value)
		}
		h.ContentType = &ct
	}
	return nil
}
