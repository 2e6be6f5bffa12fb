package observability

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Diagnostics go to stderr: stdout is
// reserved for the emitted access log records.
func NewLogger(level string) *zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	case "quiet":
		lvl = zerolog.Disabled
	}
	logger := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	return &logger
}
