package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Init initializes the global logger. Logs go to stderr so command output on
// stdout stays machine readable. If logFilePath is non-empty, logs are also
// appended to the file. level can be "debug", "info", "warn", "error".
// format "console" renders human-friendly lines on stderr; anything else is JSON.
func Init(logFilePath, level, format string) (func(), error) {
	l := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		l = zerolog.DebugLevel
	case "info":
		l = zerolog.InfoLevel
	case "warn":
		l = zerolog.WarnLevel
	case "error":
		l = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(l)

	var stderr io.Writer = os.Stderr
	if strings.EqualFold(format, "console") {
		stderr = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	writers := []io.Writer{stderr}
	var f *os.File
	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		var err error
		f, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
	}
	Log = zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
	return func() {
		if f != nil {
			_ = f.Close()
		}
	}, nil
}

// Log is the package-global logger configured by Init
var Log = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Get returns a pointer to the package-global logger
func Get() *zerolog.Logger {
	return &Log
}
