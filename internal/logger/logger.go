// Package logger provides a small leveled logger with per-component tags.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Logger writes leveled, optionally tagged lines. All methods are safe on a
// nil receiver and discard their input, so components may treat their logger
// as optional.
type Logger struct {
	logger   *log.Logger
	minLevel Level
	tag      string
}

func New(minLevel Level) *Logger {
	return NewWithWriter(os.Stdout, minLevel)
}

func NewWithWriter(w io.Writer, minLevel Level) *Logger {
	return &Logger{
		logger:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		minLevel: minLevel,
	}
}

// WithTag returns a logger sharing the receiver's sink and level that
// prefixes every line with "[tag]". Tagging a nil logger yields nil.
func (l *Logger) WithTag(tag string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		logger:   l.logger,
		minLevel: l.minLevel,
		tag:      tag,
	}
}

func (l *Logger) printf(level Level, msg string, args ...any) {
	if l == nil || level < l.minLevel {
		return
	}
	prefix := "[" + level.String() + "] "
	if l.tag != "" {
		prefix += "[" + l.tag + "] "
	}
	l.logger.Printf(prefix+msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) { l.printf(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.printf(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.printf(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.printf(ERROR, msg, args...) }

func (l *Logger) Fatal(msg string, args ...any) {
	if l == nil {
		os.Exit(1)
	}
	l.logger.Fatalf("[FATAL] "+msg, args...)
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q (valid: DEBUG, INFO, WARN, ERROR)", s)
	}
}
