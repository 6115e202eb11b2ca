// Package tiierr defines the error taxonomy described in spec §7: request
// head parsing failures, user errors raised by endpoints/filters, route
// template compile errors, and type-system cast failures. Each kind is a
// distinct Go type so callers can branch on it with errors.As, and every
// constructor wraps the offending raw bytes where that helps debugging.
package tiierr

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ParseError is returned by the request-head parser (spec §4.2) and by
// body framing decisions made at context-construction time (spec §4.3).
// The server never invokes the user error handler for these: it returns
// the error to its caller and closes the connection (spec §7).
type ParseError struct {
	Kind W
	Raw  []byte
}

// W enumerates the RequestHeadParsing error kinds named in spec §7.
type W string

const (
	StatusLineContainsInvalidBytes  W = "status_line_contains_invalid_bytes"
	StatusLineNoCRLF                W = "status_line_no_crlf"
	StatusLineNoWhitespace          W = "status_line_no_whitespace"
	StatusLineTooManyWhitespaces    W = "status_line_too_many_whitespaces"
	StatusLineTooLong               W = "status_line_too_long"
	InvalidPath                     W = "invalid_path"
	InvalidPathUrlEncoding          W = "invalid_path_url_encoding"
	InvalidQueryString              W = "invalid_query_string"
	MethodNotSupportedByHTTPVersion W = "method_not_supported_by_http_version"
	HeaderNotSupportedByHTTPVersion W = "header_not_supported_by_http_version"
	HeaderLineIsNotUsAscii          W = "header_line_is_not_us_ascii"
	HeaderLineNoCRLF                W = "header_line_no_crlf"
	HeaderNameEmpty                 W = "header_name_empty"
	HeaderValueMissing              W = "header_value_missing"
	HeaderValueEmpty                W = "header_value_empty"
	HeaderLineTooLong               W = "header_line_too_long"
	HTTPVersionNotSupported         W = "http_version_not_supported"
	TransferEncodingNotSupported    W = "transfer_encoding_not_supported"
	ContentEncodingNotSupported     W = "content_encoding_not_supported"
	InvalidContentLength            W = "invalid_content_length"
	IllegalAcceptHeaderValueSet     W = "illegal_accept_header_value_set"
	IllegalContentTypeHeaderValueSet W = "illegal_content_type_header_value_set"
	InvalidWebSocketOpcode          W = "invalid_web_socket_opcode"
	WebSocketTextNotUTF8            W = "web_socket_text_message_is_not_utf8"
)

func (e *ParseError) Error() string {
	if len(e.Raw) == 0 {
		return fmt.Sprintf("tii: request head parsing error: %s", e.Kind)
	}
	return fmt.Sprintf("tii: request head parsing error: %s: %q", e.Kind, e.Raw)
}

// NewParseError builds a ParseError, optionally capturing the raw bytes
// that triggered it for diagnostics (spec §7: "carries the raw offending
// bytes where useful").
func NewParseError(kind W, raw []byte) *ParseError {
	return &ParseError{Kind: kind, Raw: raw}
}

// UserError models a protocol violation committed by application code: an
// endpoint or filter touching a reserved header, setting an unparsable
// Accept/Content-Type, shrinking the head buffer below the minimum, or
// causing a type-system mismatch. Policy: surfaces as a 500 via the error
// handler (spec §7).
type UserError struct {
	Reason string
}

func (e *UserError) Error() string { return "tii: user error: " + e.Reason }

// NewUserError wraps reason as a UserError.
func NewUserError(reason string) *UserError {
	return &UserError{Reason: reason}
}

// InvalidPathErrorKind enumerates route-template compile-time problems
// (spec §4.4), returned from router-builder APIs, never from the hot path.
type InvalidPathErrorKind string

const (
	MorePartsAfterWildcard InvalidPathErrorKind = "more_parts_after_wildcard"
	RegexSyntaxError       InvalidPathErrorKind = "regex_syntax_error"
	RegexTooBig            InvalidPathErrorKind = "regex_too_big"
)

// InvalidPathError reports a malformed route path template.
type InvalidPathError struct {
	Kind InvalidPathErrorKind
	Path string
	Err  error
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("tii: invalid route path %q: %s", e.Path, e.Kind)
}

func (e *InvalidPathError) Unwrap() error { return e.Err }

// NewInvalidPathError wraps a route-compile failure with errors.WithStack
// so builder-time failures keep a trace back to the offending Route call.
func NewInvalidPathError(kind InvalidPathErrorKind, path string, cause error) *InvalidPathError {
	return &InvalidPathError{Kind: kind, Path: path, Err: errors.WithStack(cause)}
}

// TypeSystemError reports a dynamic cast failure in a filter (spec §7).
type TypeSystemError struct {
	Reason string
}

func (e *TypeSystemError) Error() string { return "tii: type system error: " + e.Reason }

// NewTypeSystemError wraps reason as a TypeSystemError.
func NewTypeSystemError(reason string) *TypeSystemError {
	return &TypeSystemError{Reason: reason}
}

// IsCleanDisconnect classifies an IO error per spec §7: UnexpectedEOF,
// connection reset/aborted, broken pipe, timeout, and would-block are
// treated as clean disconnects during keep-alive; everything else
// propagates to the caller.
func IsCleanDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}
	return isNetClosedOrReset(err)
}
