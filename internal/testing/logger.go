package testing

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// stdoutLogger implements TestLogger for CLI mode, outputting to stdout/stderr
type stdoutLogger struct {
	verbose bool
	debug   bool
	out     io.Writer
	errOut  io.Writer
	mu      *sync.Mutex
}

// NewStdoutLogger creates a logger that outputs to stdout/stderr
func NewStdoutLogger(verbose, debug bool) TestLogger {
	return NewWriterLogger(verbose, debug, os.Stdout, os.Stderr)
}

// NewWriterLogger creates a logger writing to out, with errors to errOut.
func NewWriterLogger(verbose, debug bool, out, errOut io.Writer) TestLogger {
	return &stdoutLogger{verbose: verbose, debug: debug, out: out, errOut: errOut, mu: &sync.Mutex{}}
}

func (l *stdoutLogger) Debug(format string, args ...interface{}) {
	if l.debug {
		l.write(l.out, format, args...)
	}
}

func (l *stdoutLogger) Info(format string, args ...interface{}) {
	if l.verbose || l.debug {
		l.write(l.out, format, args...)
	}
}

func (l *stdoutLogger) Error(format string, args ...interface{}) {
	l.write(l.errOut, format, args...)
}

func (l *stdoutLogger) write(w io.Writer, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(w, format, args...)
}

func (l *stdoutLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *stdoutLogger) IsVerboseEnabled() bool {
	return l.verbose
}

// silentLogger implements TestLogger for MCP server mode, suppressing all output
type silentLogger struct {
	verbose bool
	debug   bool
}

// NewSilentLogger creates a logger that suppresses all output (for MCP server mode)
func NewSilentLogger(verbose, debug bool) TestLogger {
	return &silentLogger{
		verbose: verbose,
		debug:   debug,
	}
}

func (l *silentLogger) Debug(format string, args ...interface{}) {
	// Silent - no output to avoid contaminating stdio
}

func (l *silentLogger) Info(format string, args ...interface{}) {
	// Silent - no output to avoid contaminating stdio
}

func (l *silentLogger) Error(format string, args ...interface{}) {
	// Silent - no output to avoid contaminating stdio
}

func (l *silentLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *silentLogger) IsVerboseEnabled() bool {
	return l.verbose
}

// prefixedLogger tags every line with the scenario name so interleaved
// output from parallel workers stays attributable.
type prefixedLogger struct {
	TestLogger
	prefix string
}

// WithScenarioPrefix wraps logger so its lines start with [name].
func WithScenarioPrefix(logger TestLogger, name string) TestLogger {
	return &prefixedLogger{TestLogger: logger, prefix: "[" + name + "] "}
}

func (l *prefixedLogger) Debug(format string, args ...interface{}) {
	l.TestLogger.Debug(l.prefix+format, args...)
}

func (l *prefixedLogger) Info(format string, args ...interface{}) {
	l.TestLogger.Info(l.prefix+format, args...)
}

func (l *prefixedLogger) Error(format string, args ...interface{}) {
	l.TestLogger.Error(l.prefix+format, args...)
}
