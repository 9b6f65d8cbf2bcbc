package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"todoapi/internal/config"
)

// NewLogger builds the process logger from the log section of the config.
func NewLogger(w io.Writer, cfg *config.Config) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if raw := strings.TrimSpace(cfg.Log.Level); raw != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(raw))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", raw, err)
		}
		level = parsed
	}
	if cfg.Log.Format == config.FormatConsole {
		consoleWriter := zerolog.NewConsoleWriter()
		consoleWriter.TimeFormat = time.DateTime
		consoleWriter.Out = w
		w = consoleWriter
	}
	zerolog.TimestampFieldName = "timestamp"
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger(), nil
}
