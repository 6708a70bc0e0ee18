// Package logging is the CLI's leveled logger. Log lines must never
// carry secret material: wrap plaintext credentials in Secret before
// handing them to a format verb, and scrub backend errors that echo
// credentials with Redact.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Redacted replaces secret material in log output.
const Redacted = "[REDACTED]"

// Logger writes leveled, optionally colored lines.
type Logger struct {
	out     io.Writer
	debug   bool
	noColor bool
}

// New creates a logger writing to stderr. Debug lines are dropped
// unless debug is set.
func New(debug, noColor bool) *Logger {
	return &Logger{out: os.Stderr, debug: debug, noColor: noColor}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write("\033[32m", "✓", format, args)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write("\033[33m", "⚠", format, args)
}

// Debug logs a message only when debug mode is on.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.write("\033[36m", "[DEBUG]", format, args)
}

func (l *Logger) write(color, prefix, format string, args []interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.noColor {
		fmt.Fprintf(l.out, "%s %s\n", prefix, msg)
		return
	}
	fmt.Fprintf(l.out, "%s%s\033[0m %s\n", color, prefix, msg)
}

// Secret wraps a plaintext credential so format verbs cannot leak it.
type Secret string

func (s Secret) String() string   { return Redacted }
func (s Secret) GoString() string { return Redacted }

// Redact strips known secret values out of a message, typically a
// backend error that echoed a credential back.
func Redact(msg string, secrets []string) string {
	for _, secret := range secrets {
		// Very short values would redact unrelated substrings.
		if len(secret) > 3 {
			msg = strings.ReplaceAll(msg, secret, Redacted)
		}
	}
	return msg
}
