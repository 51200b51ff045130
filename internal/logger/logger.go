// Package logger provides levelled logging for the stitch service.
// Info, Warn and Error always print; Debug and Section only print when
// verbose mode is enabled via the --verbose flag.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func write(debugOnly bool, level, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if debugOnly && !verbose {
		return
	}
	fmt.Fprintf(output, "["+level+"] "+prefix+format+"\n", args...)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	write(true, "DEBUG", "", format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Info prints an informational message.
func Info(format string, args ...any) {
	write(false, "INFO", "", format, args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	write(false, "WARN", "", format, args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	write(false, "ERROR", "", format, args...)
}

// Fields is a logger that prefixes every message with key=value pairs.
type Fields struct {
	prefix string
}

// With returns a logger that prefixes messages with the given key/value
// pairs, e.g. With("session", id, "seq", 3) logs "session=abc seq=3 ...".
// A trailing key without a value is ignored.
func With(kv ...any) Fields {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, "%v=%v ", kv[i], kv[i+1])
	}
	return Fields{prefix: strings.ReplaceAll(b.String(), "%", "%%")}
}

// With returns a logger carrying the receiver's fields plus kv.
func (f Fields) With(kv ...any) Fields {
	return Fields{prefix: f.prefix + With(kv...).prefix}
}

// Debug prints a message if verbose mode is enabled.
func (f Fields) Debug(format string, args ...any) {
	write(true, "DEBUG", f.prefix, format, args...)
}

// Info prints an informational message.
func (f Fields) Info(format string, args ...any) {
	write(false, "INFO", f.prefix, format, args...)
}

// Warn prints a warning message.
func (f Fields) Warn(format string, args ...any) {
	write(false, "WARN", f.prefix, format, args...)
}

// Error prints an error message.
func (f Fields) Error(format string, args ...any) {
	write(false, "ERROR", f.prefix, format, args...)
}
