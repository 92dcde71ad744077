package logging

import (
	"log"
	"log/slog"
	"os"
)

var Logger *slog.Logger

var level = new(slog.LevelVar) // dynamic level if we ever want to adjust it

func init() {
	Init()
}

// Init builds the package logger from the environment. JSON output is the
// default; LOG_FORMAT=text switches to the text handler and LOG_LEVEL=debug
// lowers the level.
func Init() {
	if os.Getenv("LOG_LEVEL") == "debug" {
		level.Set(slog.LevelDebug)
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	Logger = slog.New(handler)
	Info = Logger.Info
	Error = Logger.Error
	Warn = Logger.Warn
	Debug = Logger.Debug
}

// Shortcut helpers (optional)
var (
	Info  = Logger.Info
	Error = Logger.Error
	Warn  = Logger.Warn
	Debug = Logger.Debug
)

// Fatal logs at error level and exits.
func Fatal(msg string, args ...any) {
	Logger.Error(msg, args...)
	os.Exit(1)
}

// WrapSlog returns a stdlib *log.Logger routed into the slog handler, for
// libraries that only accept *log.Logger.
func WrapSlog(args ...any) *log.Logger {
	return slog.NewLogLogger(Logger.With(args...).Handler(), slog.LevelDebug)
}
