package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger is the component-scoped logging contract shared by every package.
type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel maps a textual level onto LogLevel. Unknown values fall back to info.
func ParseLevel(value string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// LevelFromEnv reads LOG_LEVEL, then DEBUG=1, defaulting to info.
func LevelFromEnv() LogLevel {
	if value := os.Getenv("LOG_LEVEL"); value != "" {
		return ParseLevel(value)
	}
	if os.Getenv("DEBUG") == "1" {
		return DebugLevel
	}
	return InfoLevel
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New writes human readable output when out is a terminal and JSON lines otherwise.
func New(level LogLevel, out *os.File) Logger {
	if term.IsTerminal(int(out.Fd())) {
		return newZeroLogger(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}, level)
	}
	return newZeroLogger(out, level)
}

// NewWriter is New for arbitrary writers, always emitting JSON.
func NewWriter(level LogLevel, w io.Writer) Logger {
	return newZeroLogger(w, level)
}

// Nop discards everything.
func Nop() Logger {
	return zeroLogger{log: zerolog.Nop()}
}

type zeroLogger struct {
	log zerolog.Logger
}

func newZeroLogger(w io.Writer, level LogLevel) zeroLogger {
	return zeroLogger{log: zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()}
}

func (z zeroLogger) Debug(component, message string, fields map[string]interface{}) {
	z.emit(z.log.Debug(), component, fields).Msg(message)
}

func (z zeroLogger) Info(component, message string, fields map[string]interface{}) {
	z.emit(z.log.Info(), component, fields).Msg(message)
}

func (z zeroLogger) Warning(component, message string, fields map[string]interface{}) {
	z.emit(z.log.Warn(), component, fields).Msg(message)
}

// Error logs err under "<component> failed".
func (z zeroLogger) Error(component string, err error, fields map[string]interface{}) {
	z.emit(z.log.Error().Err(err), component, fields).Msg(component + " failed")
}

// emit returns nil for disabled levels; zerolog treats a nil event as a no-op.
func (z zeroLogger) emit(e *zerolog.Event, component string, fields map[string]interface{}) *zerolog.Event {
	if e == nil {
		return nil
	}
	e = e.Str("component", component)
	if len(fields) > 0 {
		e = e.Fields(fields)
	}
	return e
}
