package core

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewZerologLogger routes entries to zl. Filtering happens on minLevel;
// zl's own level should be left permissive.
func NewZerologLogger(zl zerolog.Logger, minLevel Level) *Logger {
	handler := func(level string, msg string, attrs map[string]interface{}) {
		var ev *zerolog.Event
		switch level {
		case LevelDebug.String():
			ev = zl.Debug()
		case LevelInfo.String():
			ev = zl.Info()
		case LevelWarn.String():
			ev = zl.Warn()
		default:
			ev = zl.Error()
		}
		if len(attrs) > 0 {
			ev = ev.Fields(attrs)
		}
		ev.Msg(msg)
	}
	return NewLogger(minLevel, handler)
}

// NewDevelopmentLogger creates a logger with human readable console output.
func NewDevelopmentLogger(minLevel Level) *Logger {
	return NewWriterLogger(os.Stdout, minLevel)
}

// NewWriterLogger writes zerolog console lines to w.
func NewWriterLogger(w io.Writer, minLevel Level) *Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return NewZerologLogger(zerolog.New(console).With().Timestamp().Logger(), minLevel)
}
