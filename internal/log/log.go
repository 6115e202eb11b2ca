// Package log wraps zerolog with the defaults tii's components expect:
// a discard logger unless the embedder wires one in.
package log

import (
	"io"

	"github.com/rs/zerolog"
)

// Nop returns a logger that discards everything, used as the zero value
// for components that are not given a logger explicitly.
func Nop() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// New builds a logger that writes timestamped JSON lines to w at level,
// the shape used by the demo binary and by tests that want to see what
// the engine is doing.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
