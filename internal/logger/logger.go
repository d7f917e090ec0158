// Package logger is the process-wide structured logger. Level comes from
// the LOG_LEVEL env var at startup and can be overridden from config.
package logger

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

var Logger *log.Logger

func init() {
	Logger = log.New(os.Stderr)
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel changes the log level from a string such as "debug" or "WARN".
// An empty or unknown value falls back to info.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		Logger.SetLevel(log.DebugLevel)
	case "INFO":
		Logger.SetLevel(log.InfoLevel)
	case "WARN", "WARNING":
		Logger.SetLevel(log.WarnLevel)
	case "ERROR":
		Logger.SetLevel(log.ErrorLevel)
	case "FATAL":
		Logger.SetLevel(log.FatalLevel)
	default:
		Logger.SetLevel(log.InfoLevel)
	}
}

func Debug(msg any, keyvals ...any) {
	Logger.Debug(msg, keyvals...)
}

func Info(msg any, keyvals ...any) {
	Logger.Info(msg, keyvals...)
}

func Warn(msg any, keyvals ...any) {
	Logger.Warn(msg, keyvals...)
}

func Error(msg any, keyvals ...any) {
	Logger.Error(msg, keyvals...)
}
