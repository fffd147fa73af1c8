package ctrace

import (
	"io"
	"sync"
)

// Reporter is the transport for encoded span records.
//
// Report receives one complete record, newline included. The slice is only
// valid for the duration of the call. Flush is best-effort.
type Reporter interface {
	Report(record []byte) error
	Flush() error
}

// WriterReporter writes records to an io.Writer, one Write per record.
// Safe for concurrent use by multiple goroutines.
type WriterReporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterReporter wraps w.
func NewWriterReporter(w io.Writer) *WriterReporter {
	return &WriterReporter{w: w}
}

// Report writes record.
func (r *WriterReporter) Report(record []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.w.Write(record)
	return err
}

// Flush flushes writers that buffer, such as *bufio.Writer. Files are
// written through and not synced.
func (r *WriterReporter) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.w.(interface{ Flush() error }); ok {
		return w.Flush()
	}
	return nil
}
