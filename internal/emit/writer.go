package emit

import (
	"fmt"
	"io"
	"os"
)

// Writer tees record lines to a primary destination (normally stdout) and
// an optional secondary append-mode file carrying the same stream.
type Writer struct {
	primary   io.Writer
	secondary *os.File
	closed    bool
}

// NewWriter returns a Writer for the primary destination only.
func NewWriter(primary io.Writer) *Writer {
	return &Writer{primary: primary}
}

// NewTeeWriter opens path in append mode as a secondary destination for the
// same record stream.
func NewTeeWriter(primary io.Writer, path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open secondary output %q: %w", path, err)
	}
	return &Writer{primary: primary, secondary: f}, nil
}

// WriteHeader writes the protocol header line to every destination.
func (w *Writer) WriteHeader() error {
	return w.writeLine(Header)
}

// WriteRecord writes one record line to every destination.
func (w *Writer) WriteRecord(r Record) error {
	return w.writeLine(r.Line())
}

func (w *Writer) writeLine(line string) error {
	if _, err := fmt.Fprintln(w.primary, line); err != nil {
		return err
	}
	if w.secondary != nil {
		if _, err := fmt.Fprintln(w.secondary, line); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the secondary file if any. It is idempotent and safe on
// every shutdown path.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.secondary != nil {
		return w.secondary.Close()
	}
	return nil
}
