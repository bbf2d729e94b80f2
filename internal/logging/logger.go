package logging

import (
	"fmt"
	"io"
	logpkg "log"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Level defines severity for logger output.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = map[string]Level{
	"error": LevelError,
	"warn":  LevelWarn,
	"info":  LevelInfo,
	"debug": LevelDebug,
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(raw string) (Level, error) {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

const (
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiReset  = "\x1b[0m"
)

// Logger provides leveled progress output.
type Logger struct {
	mu     sync.Mutex
	level  Level
	color  bool
	logger *logpkg.Logger
}

// New creates a logger writing to out. Warnings and errors are colored when out is a terminal.
func New(out io.Writer, level Level, prefix string) *Logger {
	return &Logger{
		level:  level,
		color:  isTerminal(out),
		logger: logpkg.New(out, prefix, logpkg.LstdFlags),
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// SetLevel adjusts current logging level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) logf(target Level, format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if target > l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.color {
		switch target {
		case LevelWarn:
			msg = ansiYellow + msg + ansiReset
		case LevelError:
			msg = ansiRed + msg + ansiReset
		}
	}
	_ = l.logger.Output(3, msg)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.logf(LevelDebug, format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.logf(LevelInfo, format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logf(LevelWarn, format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logf(LevelError, format, args...)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(os.Stdout, LevelInfo, "")
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger (primarily for tests).
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}
