package ctrace

import (
	"time"

	"github.com/opentracing/opentracing-go/log"
)

const (
	// EventStartSpan is the event of the log written when a span starts.
	EventStartSpan = "Start-Span"
	// EventStopSpan is the event of the log written when a span finishes.
	EventStopSpan = "Stop-Span"
)

// LogRecord is one timestamped log of a span. Field order is preserved.
type LogRecord struct {
	Timestamp time.Time
	Fields    []log.Field
}

// Event returns the value of the first "event" or "message" field.
func (r LogRecord) Event() string {
	for _, f := range r.Fields {
		switch f.Key() {
		case "event", "message":
			if s, ok := f.Value().(string); ok {
				return s
			}
		}
	}
	return ""
}

func eventRecord(ts time.Time, event string) LogRecord {
	return LogRecord{Timestamp: ts, Fields: []log.Field{log.Event(event)}}
}
