package ctrace

import "time"

// Snapshot is a consistent, immutable copy of a span's state, taken under
// the span's lock. Encoders and loggers only ever read snapshots.
type Snapshot struct {
	TraceID   string
	SpanID    string
	ParentID  string
	Service   string
	Operation string
	Start     time.Time
	Finish    time.Time
	Tags      []Tag
	Baggage   []BaggageItem

	// Logs is set only in single-event mode and holds every buffered log
	// in call order.
	Logs []LogRecord

	Finished bool
}

// StartMillis returns the start time in milliseconds since the epoch.
func (s *Snapshot) StartMillis() int64 { return s.Start.UnixMilli() }

// FinishMillis returns the finish time in milliseconds, or 0 when unfinished.
func (s *Snapshot) FinishMillis() int64 {
	if !s.Finished {
		return 0
	}
	return s.Finish.UnixMilli()
}

// DurationMillis returns finish minus start in milliseconds, or 0 when unfinished.
func (s *Snapshot) DurationMillis() int64 {
	if !s.Finished {
		return 0
	}
	return s.FinishMillis() - s.StartMillis()
}
