package stream

import "errors"

// ErrLineTooLong indicates ReadUntil consumed its limit without finding
// the delimiter.
var ErrLineTooLong = errors.New("tii: line exceeds configured limit")
