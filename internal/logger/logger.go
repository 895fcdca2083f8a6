// Package logger is a small leveled logger with key=value fields. Memory
// content routinely ends up in log lines, so messages and string fields are
// passed through secret masking before they are written.
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents logging levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" to a Level.
// Unknown names fall back to LevelInfo and report false.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info", "":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "off", "none", "silent":
		return LevelOff, true
	default:
		return LevelInfo, false
	}
}

// Logger writes leveled lines of the form
//
//	2025-03-01T12:00:00.000Z INFO [prefix] message key=value
type Logger struct {
	level  Level
	output io.Writer
	prefix string
	fields map[string]interface{}

	// mu is shared by every logger derived from the same root so lines
	// written to one output never interleave.
	mu        *sync.Mutex
	maskFuncs []MaskFunc
}

// MaskFunc is a function that masks sensitive data
type MaskFunc func(string) string

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9]{20,})`),
	regexp.MustCompile(`(?i)(gh[pousr]_[a-zA-Z0-9]{36})`),
	regexp.MustCompile(`(?i)(AKIA[A-Z0-9]{16})`),
	regexp.MustCompile(`(?i)(Bearer\s+[a-zA-Z0-9._-]+)`),
	regexp.MustCompile(`(?i)(api[_-]?key[=:]\s*["']?[a-zA-Z0-9_-]{16,}["']?)`),
	regexp.MustCompile(`(?i)(password[=:]\s*["']?[^\s"']{8,}["']?)`),
	regexp.MustCompile(`(?i)(token[=:]\s*["']?[a-zA-Z0-9._-]{20,}["']?)`),
	regexp.MustCompile(`-----BEGIN [A-Z ]+ PRIVATE KEY-----[\s\S]*?-----END [A-Z ]+ PRIVATE KEY-----`),
}

var sensitiveFieldNames = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"credentials":   true,
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process-wide logger, writing INFO and above to stderr.
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(LevelInfo, os.Stderr)
	})
	return defaultLogger
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(LevelOff, io.Discard)
}

// New creates a new logger
func New(level Level, output io.Writer) *Logger {
	return &Logger{
		level:     level,
		output:    output,
		fields:    map[string]interface{}{},
		mu:        &sync.Mutex{},
		maskFuncs: []MaskFunc{maskPatterns},
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level && l.level != LevelOff
}

// WithField returns a new logger with the field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with the fields added
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	c := l.derive()
	c.fields = make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		c.fields[k] = v
	}
	for k, v := range fields {
		c.fields[k] = v
	}
	return c
}

// WithPrefix returns a new logger with the prefix. Nested prefixes are
// joined with a dot.
func (l *Logger) WithPrefix(prefix string) *Logger {
	c := l.derive()
	if l.prefix != "" && prefix != "" {
		prefix = l.prefix + "." + prefix
	}
	c.prefix = prefix
	return c
}

func (l *Logger) derive() *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		level:     l.level,
		output:    l.output,
		prefix:    l.prefix,
		fields:    l.fields,
		mu:        l.mu,
		maskFuncs: l.maskFuncs,
	}
}

// AddMaskFunc adds a custom masking function
func (l *Logger) AddMaskFunc(fn MaskFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maskFuncs = append(append([]MaskFunc(nil), l.maskFuncs...), fn)
}

func maskPatterns(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllStringFunc(s, maskString)
	}
	return s
}

// maskString keeps the first and last four characters of s.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***MASKED***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}

func (l *Logger) mask(s string) string {
	for _, fn := range l.maskFuncs {
		s = fn(s)
	}
	return s
}

func (l *Logger) maskValue(key string, value interface{}) interface{} {
	if IsSensitiveKey(key) {
		if str, ok := value.(string); ok {
			return maskString(str)
		}
		return "***MASKED***"
	}
	if str, ok := value.(string); ok {
		return l.mask(str)
	}
	return value
}

// formatFields renders fields sorted by key.
func (l *Logger) formatFields() string {
	if len(l.fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, l.maskValue(k, l.fields[k]))
	}
	return sb.String()
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level == LevelOff || level < l.level {
		return
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	msg = l.mask(msg)

	prefix := ""
	if l.prefix != "" {
		prefix = "[" + l.prefix + "] "
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	fmt.Fprintf(l.output, "%s %s %s%s%s\n", timestamp, level, prefix, msg, l.formatFields())
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// MaskSecrets masks all known secret patterns in a string
func MaskSecrets(s string) string {
	return maskPatterns(s)
}

// IsSensitiveKey checks if a key name is sensitive
func IsSensitiveKey(key string) bool {
	return sensitiveFieldNames[strings.ToLower(key)]
}
