package ctrace

import (
	"context"

	"github.com/opentracing/opentracing-go/log"
)

// PreEncoded holds the cacheable fragments of a span's JSON record. A
// log-only record can be assembled from them without walking the span's
// tags and baggage again:
//
//	Start + Finish + "log" + Tags + Baggage + "}\n"
type PreEncoded struct {
	// Start runs from the opening brace through the "start" field.
	Start string
	// Finish holds the finish and duration fields, or "" when unfinished.
	Finish string
	// Tags holds the tags object with its leading comma, or "".
	Tags string
	// Baggage holds the baggage object with its leading comma, or "".
	Baggage string
}

// PreEncode splits the snapshot into fragments.
func (e JSONEncoder) PreEncode(snap *Snapshot) PreEncoded {
	return PreEncoded{
		Start:   string(e.appendStart(nil, snap)),
		Finish:  string(e.appendFinish(nil, snap)),
		Tags:    string(e.appendTags(nil, snap.Tags)),
		Baggage: string(e.appendBaggage(nil, snap.Baggage)),
	}
}

// Append assembles a record for rec from the fragments. The output equals
// JSONEncoder.Encode for the same multi-event snapshot and record.
func (p PreEncoded) Append(dst []byte, rec *LogRecord) []byte {
	dst = append(dst, p.Start...)
	dst = append(dst, p.Finish...)
	dst = append(dst, `,"log":`...)
	dst = appendRecord(dst, rec)
	dst = append(dst, p.Tags...)
	dst = append(dst, p.Baggage...)
	return appendSuffix(dst)
}

// PreEncode returns the span's fragments, computing them on first use and
// returning the cached copy afterwards. The cache is never refreshed, so
// call it only once the span's tags and baggage are final.
func (s *Span) PreEncode() PreEncoded {
	s.mu.Lock()
	if s.preEncoded != nil {
		p := *s.preEncoded
		s.mu.Unlock()
		return p
	}
	s.mu.Unlock()

	snap := s.Snapshot()
	p := JSONEncoder{}.PreEncode(&snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preEncoded == nil {
		s.preEncoded = &p
	}
	return *s.preEncoded
}

// AppendContextLog renders an application log line as a full span record
// of the span active in ctx, stamped with the tracer's clock. It reports
// false, leaving dst untouched, when ctx carries no active span.
func (t *Tracer) AppendContextLog(dst []byte, ctx context.Context, fields ...log.Field) ([]byte, bool) {
	active := ActiveSpanFromContext(ctx)
	if active == nil {
		return dst, false
	}
	rec := LogRecord{Timestamp: t.clock.Now(), Fields: fields}
	return active.Span().PreEncode().Append(dst, &rec), true
}
