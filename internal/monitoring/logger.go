// Package monitoring holds the process-wide diagnostic logger. It defaults to
// a console writer on stderr and may be replaced or muted by tests.
package monitoring

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Logger returns the package logger.
func Logger() *zerolog.Logger {
	return &logger
}

// SetLogger replaces the package logger. Tests or production code can
// redirect or mute it.
func SetLogger(l zerolog.Logger) {
	logger = l
}

// Mute discards all log output. Intended for tests.
func Mute() {
	logger = zerolog.New(io.Discard)
}

// SetVerbose lowers the level to Debug when on, Info otherwise.
func SetVerbose(on bool) {
	if on {
		logger = logger.Level(zerolog.DebugLevel)
		return
	}
	logger = logger.Level(zerolog.InfoLevel)
}
