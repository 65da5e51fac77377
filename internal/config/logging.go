package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mrz1836/sompi/internal/fileutil"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var logLevels = []string{"off", "error", "warn", "info", "debug"} //nolint:gochecknoglobals // lookup table

// ParseLogLevel parses a log level string. Unknown values mean error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "warn", "warning":
		return LogLevelWarn
	case "info":
		return LogLevelInfo
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	if l < LogLevelOff || l > LogLevelDebug {
		return "error"
	}
	return logLevels[l]
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelOff:
		return zerolog.Disabled
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Logger owns the process log sinks: a JSON log file and optionally a
// human-readable console stream.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	zl       zerolog.Logger
	file     *os.File
	filePath string
}

// NewLogger creates a logger writing JSON to filePath (if set) and console
// output to console (if non-nil).
func NewLogger(level LogLevel, filePath string, console io.Writer) (*Logger, error) {
	logger := &Logger{level: level, zl: zerolog.Nop()}
	if level == LogLevelOff {
		return logger, nil
	}

	var writers []io.Writer
	if console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"})
	}

	if filePath != "" {
		filePath = fileutil.ExpandHome(filePath)
		if err := os.MkdirAll(filepath.Dir(filePath), fileutil.PrivateDir); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileutil.PrivateFile) //nolint:gosec // G304: path from config
		if err != nil {
			return nil, err
		}
		logger.file = f
		logger.filePath = filePath
		writers = append(writers, f)
	}

	if len(writers) == 0 {
		return logger, nil
	}
	logger.zl = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level.zerolog()).
		With().
		Timestamp().
		Logger()
	return logger, nil
}

// Zerolog returns the structured logger components log through.
func (l *Logger) Zerolog() zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl
}

// Level returns the configured log level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// FilePath returns the resolved log file path, if any.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.zl = zerolog.Nop()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff, zl: zerolog.Nop()}
}
