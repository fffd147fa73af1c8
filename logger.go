package ctrace

import (
	"errors"

	"go.uber.org/zap"
)

// Logger receives span lifecycle events. The tracer calls it synchronously
// on the goroutine that caused the event. Implementations must not panic
// and must swallow their own transport errors.
type Logger interface {
	// Start is called once, before the span is returned to its creator.
	Start(span *Span, rec LogRecord)
	// Activate is called each time the span becomes active in a context.
	Activate(span *Span)
	// Log is called for each log in multi-event mode only; single-event
	// spans buffer their logs until Finish.
	Log(span *Span, rec LogRecord)
	// Finish is called once, by the first Finish on the span.
	Finish(span *Span, rec LogRecord)
}

// NopLogger discards every event.
type NopLogger struct{}

// Start implements Logger.
func (NopLogger) Start(*Span, LogRecord) {}

// Activate implements Logger.
func (NopLogger) Activate(*Span) {}

// Log implements Logger.
func (NopLogger) Log(*Span, LogRecord) {}

// Finish implements Logger.
func (NopLogger) Finish(*Span, LogRecord) {}

// MultiLogger fans every event out to each of its loggers in order. The
// tracer recovers a panic in one member without skipping the others.
type MultiLogger []Logger

// Start implements Logger.
func (m MultiLogger) Start(span *Span, rec LogRecord) {
	for _, l := range m {
		l.Start(span, rec)
	}
}

// Activate implements Logger.
func (m MultiLogger) Activate(span *Span) {
	for _, l := range m {
		l.Activate(span)
	}
}

// Log implements Logger.
func (m MultiLogger) Log(span *Span, rec LogRecord) {
	for _, l := range m {
		l.Log(span, rec)
	}
}

// Finish implements Logger.
func (m MultiLogger) Finish(span *Span, rec LogRecord) {
	for _, l := range m {
		l.Finish(span, rec)
	}
}

// Flush flushes every member that buffers output.
func (m MultiLogger) Flush() error {
	var errs []error
	for _, l := range m {
		if f, ok := l.(flusher); ok {
			errs = append(errs, f.Flush())
		}
	}
	return errors.Join(errs...)
}

// StreamLogger encodes span events and hands them to a Reporter.
//
// In multi-event mode every event becomes one record carrying a "log"
// object. In single-event mode Start is skipped and Finish writes one record
// carrying all buffered logs as "logs". The reporter is flushed after each
// finish record.
type StreamLogger struct {
	reporter Reporter
	encoder  Encoder
}

// NewStreamLogger creates a logger that reports JSON records to r.
func NewStreamLogger(r Reporter) *StreamLogger {
	return &StreamLogger{reporter: r, encoder: JSONEncoder{}}
}

// WithEncoder returns a copy of the logger that uses enc.
func (l *StreamLogger) WithEncoder(enc Encoder) *StreamLogger {
	return &StreamLogger{reporter: l.reporter, encoder: enc}
}

// Start implements Logger.
func (l *StreamLogger) Start(span *Span, rec LogRecord) {
	if span.SingleEventOutput() {
		return
	}
	l.report(span, &rec, "start")
}

// Activate implements Logger.
func (*StreamLogger) Activate(*Span) {}

// Log implements Logger.
func (l *StreamLogger) Log(span *Span, rec LogRecord) {
	if span.SingleEventOutput() {
		return
	}
	l.report(span, &rec, "log")
}

// Finish implements Logger.
func (l *StreamLogger) Finish(span *Span, rec LogRecord) {
	l.report(span, &rec, "finish")
	if err := l.reporter.Flush(); err != nil {
		span.tracer.diag.Debug("flush failed", zap.Error(err))
	}
}

// Flush flushes the reporter.
func (l *StreamLogger) Flush() error {
	return l.reporter.Flush()
}

func (l *StreamLogger) report(span *Span, rec *LogRecord, event string) {
	snap := span.Snapshot()
	record := l.encoder.Encode(nil, &snap, rec)

	t := span.tracer
	if err := l.reporter.Report(record); err != nil {
		t.metrics.reportFailed()
		t.diag.Warn("report failed",
			zap.Error(err),
			zap.String("event", event),
			zap.String("trace_id", snap.TraceID),
			zap.String("span_id", snap.SpanID),
		)
		return
	}
	t.metrics.recordReported(event)
}
