// Package report writes the human-readable, indented account of a run.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const indentUnit = "    "

// Writer appends indented lines to an underlying writer. Each line is
// written immediately so a partial report survives an aborted run. Lines
// are also kept in memory and echoed to the logger at debug level.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
	level  int
	lines  []string
	err    error
	logger *slog.Logger
}

// New wraps out. A nil out keeps lines in memory only.
func New(out io.Writer, logger *slog.Logger) *Writer {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{out: out, logger: logger}
}

// Create opens (truncating) the report file at path. Environment variables
// in path are expanded.
func Create(path string, logger *slog.Logger) (*Writer, error) {
	f, err := os.Create(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("creating report %s: %w", path, err)
	}
	w := New(f, logger)
	w.closer = f
	return w, nil
}

// Line writes one formatted line at the current indentation.
func (w *Writer) Line(format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	line := msg
	if msg != "" {
		line = strings.Repeat(indentUnit, w.level) + msg
		w.logger.Debug(msg, "component", "report")
	}
	w.lines = append(w.lines, line)
	if _, err := io.WriteString(w.out, line+"\n"); err != nil && w.err == nil {
		w.err = err
	}
}

// Blank writes an empty line.
func (w *Writer) Blank() { w.Line("") }

// Indent increases the indentation by one level.
func (w *Writer) Indent() {
	w.mu.Lock()
	w.level++
	w.mu.Unlock()
}

// Outdent decreases the indentation by one level, never below zero.
func (w *Writer) Outdent() {
	w.mu.Lock()
	if w.level > 0 {
		w.level--
	}
	w.mu.Unlock()
}

// SetLevel sets the indentation level.
func (w *Writer) SetLevel(level int) {
	w.mu.Lock()
	w.level = max(level, 0)
	w.mu.Unlock()
}

// Lines returns a copy of every line written so far.
func (w *Writer) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

// String returns the report text.
func (w *Writer) String() string {
	lines := w.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying file when the writer owns one.
func (w *Writer) Close() error {
	if w.closer == nil {
		return w.Err()
	}
	if err := w.closer.Close(); err != nil {
		return err
	}
	return w.Err()
}
