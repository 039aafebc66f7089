package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// newLogger builds the per-lookup logger. Silent unless the tuning file
// raises the debug level: the module runs inside arbitrary host processes
// and must not write to their stderr uninvited. Credentials and bearer
// tokens are never logged at any level.
func newLogger(t tuning) zerolog.Logger {
	if t.debugLevel <= 0 {
		return zerolog.Nop()
	}
	level := zerolog.DebugLevel
	if t.debugLevel > 1 {
		level = zerolog.TraceLevel
	}
	var w io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("mod", "nss_aad").Logger()
}
