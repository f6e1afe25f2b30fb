package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var log *slog.Logger

// Init sets up the package-level JSON logger. Call once at startup.
func Init() {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// New wraps a handler into a slog.Logger. Exposed for tests.
func New(h slog.Handler) *slog.Logger {
	return slog.New(h)
}

// NewJSONHandler mirrors slog.NewJSONHandler so tests can swap the output.
func NewJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

func ensure() *slog.Logger {
	if log == nil {
		Init()
	}
	return log
}

func Info(msg string, args ...interface{}) {
	ensure().Info(msg, args...)
}

func Infof(format string, v ...interface{}) {
	ensure().Info(fmt.Sprintf(format, v...))
}

func Error(msg string, args ...interface{}) {
	ensure().Error(msg, args...)
}

func Errorf(format string, v ...interface{}) {
	ensure().Error(fmt.Sprintf(format, v...))
}

func Debug(msg string, args ...interface{}) {
	ensure().Debug(msg, args...)
}

func Debugf(format string, v ...interface{}) {
	ensure().Debug(fmt.Sprintf(format, v...))
}

func Fatal(msg string, args ...interface{}) {
	ensure().Error(msg, args...)
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	ensure().Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}
