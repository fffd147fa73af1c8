package ctrace

import (
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go/log"
)

// Span is a single timed unit of work in a trace.
//
// SetTag*, Log*, SetBaggageItem and Finish are safe for concurrent use;
// readers always see a consistent Snapshot. SetOperationName is meant for
// the goroutine that owns the span.
//
// The start event is written through the tracer's Logger before the Span
// is returned. Mutations after Finish are ignored, and only the first
// Finish call has any effect.
type Span struct {
	tracer     *Tracer
	context    *SpanContext
	preEncoded *PreEncoded
	start      time.Time
	finish     time.Time
	service    string
	parentID   string
	operation  string
	tags       tagSet
	logs       []LogRecord
	mu         sync.Mutex // Guards operation, finish, tags, logs, preEncoded and finished.
	emit       sync.Mutex // Orders log and finish dispatch; taken before mu.
	finished   bool
	single     bool
}

// newSpan creates the span and emits its start event. A nil parent starts
// a new trace.
func newSpan(t *Tracer, operation string, start time.Time, tags tagSet, parent *SpanContext) *Span {
	s := &Span{
		tracer:    t,
		service:   t.serviceName,
		operation: operation,
		start:     start,
		tags:      tags,
		single:    t.singleEventOutput,
	}

	if parent != nil {
		s.context = newChildContext(parent, t.idGenerator())
		s.parentID = parent.SpanID()
	} else {
		s.context = newRootContext(t.idGenerator())
	}

	rec := eventRecord(start, EventStartSpan)
	if s.single {
		s.logs = append(s.logs, rec)
	}

	t.metrics.spanStarted()
	t.dispatch(func(l Logger) { l.Start(s, rec) })
	return s
}

// Context returns the span's SpanContext. Valid at any time, including
// after Finish.
func (s *Span) Context() *SpanContext { return s.context }

// TraceID returns the trace id of this span.
func (s *Span) TraceID() string { return s.context.TraceID() }

// SpanID returns the span id of this span.
func (s *Span) SpanID() string { return s.context.SpanID() }

// ParentID returns the parent's span id, or "" for a root span.
func (s *Span) ParentID() string { return s.parentID }

// ServiceName returns the service that produced the span.
func (s *Span) ServiceName() string { return s.service }

// Tracer returns the tracer that created the span.
func (s *Span) Tracer() *Tracer { return s.tracer }

// SingleEventOutput reports whether logs are buffered until Finish.
func (s *Span) SingleEventOutput() bool { return s.single }

// OperationName returns the current operation name.
func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operation
}

// SetOperationName renames the span.
func (s *Span) SetOperationName(name string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operation = name
	return s
}

// SetTag sets a string tag. Last write wins.
func (s *Span) SetTag(key, value string) *Span {
	s.setTag(key, StringValue(value))
	return s
}

// SetBoolTag sets a boolean tag.
func (s *Span) SetBoolTag(key string, value bool) *Span {
	s.setTag(key, BoolValue(value))
	return s
}

// SetIntTag sets an integer tag.
func (s *Span) SetIntTag(key string, value int64) *Span {
	s.setTag(key, IntValue(value))
	return s
}

// SetFloatTag sets a floating point tag.
func (s *Span) SetFloatTag(key string, value float64) *Span {
	s.setTag(key, FloatValue(value))
	return s
}

// SetTagValue sets a tag from an arbitrary value. Values other than
// strings, booleans and numbers are rejected with ErrUnsupportedTagType.
func (s *Span) SetTagValue(key string, value any) error {
	v, err := NewTagValue(value)
	if err != nil {
		return fmt.Errorf("tag %q: %w", key, err)
	}
	s.setTag(key, v)
	return nil
}

func (s *Span) setTag(key string, value TagValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.tags.set(key, value)
}

// GetTag retrieves a tag value by key.
func (s *Span) GetTag(key string) (TagValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags.get(key)
}

// SetBaggageItem stores a baggage entry on the span's context. It reaches
// spans started from this one afterwards, never existing ones.
func (s *Span) SetBaggageItem(key, value string) *Span {
	s.mu.Lock()
	finished := s.finished
	s.mu.Unlock()

	if !finished {
		s.context.SetBaggageItem(key, value)
	}
	return s
}

// BaggageItem returns a baggage entry of the span's context.
func (s *Span) BaggageItem(key string) (string, bool) {
	return s.context.BaggageItem(key)
}

// LogEvent records an event at the tracer's current time.
func (s *Span) LogEvent(event string) {
	s.LogFieldsAt(s.tracer.clock.Now(), log.Event(event))
}

// LogEventAt records an event at an explicit time.
func (s *Span) LogEventAt(ts time.Time, event string) {
	s.LogFieldsAt(ts, log.Event(event))
}

// LogFields records fields at the tracer's current time.
func (s *Span) LogFields(fields ...log.Field) {
	s.LogFieldsAt(s.tracer.clock.Now(), fields...)
}

// LogKV records alternating key/value pairs. An odd or non-string key is
// logged as an error field instead.
func (s *Span) LogKV(alternatingKeyValues ...any) {
	fields, err := log.InterleavedKVToFields(alternatingKeyValues...)
	if err != nil {
		s.LogFields(log.Error(err), log.String("function", "LogKV"))
		return
	}
	s.LogFields(fields...)
}

// LogFieldsAt records fields at an explicit time.
//
// In multi-event mode the log is reported at once as a full span record,
// never after the span's Stop-Span record. In single-event mode it is
// buffered until Finish. Loggers must not log to or finish the span they
// are handed.
func (s *Span) LogFieldsAt(ts time.Time, fields ...log.Field) {
	rec := LogRecord{Timestamp: ts, Fields: fields}

	s.mu.Lock()
	if s.single {
		if !s.finished {
			s.logs = append(s.logs, rec)
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.emit.Lock()
	defer s.emit.Unlock()
	if s.IsFinished() {
		return
	}
	s.tracer.dispatch(func(l Logger) { l.Log(s, rec) })
}

// Finish completes the span at the tracer's current time.
func (s *Span) Finish() {
	s.FinishAt(s.tracer.clock.Now())
}

// FinishAt completes the span at an explicit time. A time before the start
// yields a negative duration; it is not validated.
func (s *Span) FinishAt(ts time.Time) {
	rec := eventRecord(ts, EventStopSpan)

	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.finish = ts
	if s.single {
		s.logs = append(s.logs, rec)
	}
	s.mu.Unlock()

	s.tracer.metrics.spanFinished(s)
	s.tracer.dispatch(func(l Logger) { l.Finish(s, rec) })
}

// IsFinished reports whether Finish has been called.
func (s *Span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// StartTime returns when the span started.
func (s *Span) StartTime() time.Time { return s.start }

// FinishTime returns when the span finished, or the zero time.
func (s *Span) FinishTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finish
}

// Duration returns finish minus start, or 0 while the span is unfinished.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.finished {
		return 0
	}
	return s.finish.Sub(s.start)
}

// Snapshot copies the span's current state.
func (s *Span) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TraceID:   s.context.TraceID(),
		SpanID:    s.context.SpanID(),
		ParentID:  s.parentID,
		Service:   s.service,
		Operation: s.operation,
		Start:     s.start,
		Finish:    s.finish,
		Finished:  s.finished,
		Tags:      s.tags.snapshot(),
		Baggage:   s.context.BaggageItems(),
	}
	if s.single {
		snap.Logs = make([]LogRecord, len(s.logs))
		copy(snap.Logs, s.logs)
	}
	return snap
}
