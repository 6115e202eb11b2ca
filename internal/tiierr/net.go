package tiierr

import (
	"errors"
	"io/fs"
	"net"
	"syscall"
)

// isNetClosedOrReset reports whether err indicates the peer went away
// cleanly: connection reset, connection aborted, broken pipe, or use of a
// closed network connection. Kept separate from errors.go so the syscall
// import doesn't leak into the public error-kind listing.
func isNetClosedOrReset(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return isNetClosedOrReset(pathErr.Err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return isNetClosedOrReset(opErr.Err)
	}
	return false
}
