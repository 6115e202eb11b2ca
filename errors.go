package tii

import "errors"

// ErrHeadBufferTooSmall is returned by WithMaxHeadBufferSize when asked
// for a buffer too small to ever hold a minimal status line.
var ErrHeadBufferTooSmall = errors.New("tii: max head buffer size must be at least 256 bytes")

// minHeadBufferSize mirrors RequestHeadBufferTooSmall's threshold.
const minHeadBufferSize = 0x100
