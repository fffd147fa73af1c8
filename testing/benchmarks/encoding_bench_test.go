package benchmarks

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/zoobzio/ctrace"
)

func benchSnapshot() ctrace.Snapshot {
	return ctrace.Snapshot{
		TraceID:   "0123456789abcdef",
		SpanID:    "fedcba9876543210",
		ParentID:  "00000000deadbeef",
		Service:   "bench",
		Operation: "GET /orders/{id}",
		Start:     time.UnixMilli(1700000000000),
		Tags: []ctrace.Tag{
			{Key: "component", Value: ctrace.StringValue("http")},
			{Key: "http.status_code", Value: ctrace.IntValue(200)},
			{Key: "error", Value: ctrace.BoolValue(false)},
		},
		Baggage: []ctrace.BaggageItem{{Key: "tenant", Value: "acme"}},
	}
}

// BenchmarkEncode measures encoding a full record from a snapshot.
func BenchmarkEncode(b *testing.B) {
	snap := benchSnapshot()
	rec := ctrace.LogRecord{
		Timestamp: time.UnixMilli(1700000000005),
		Fields:    []log.Field{log.String("message", "cache miss"), log.Int("attempt", 2)},
	}
	enc := ctrace.JSONEncoder{}
	buf := make([]byte, 0, 512)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf = enc.Encode(buf[:0], &snap, &rec)
	}
	b.SetBytes(int64(len(buf)))
}

// BenchmarkPreEncodedAppend measures appending a log to cached fragments,
// the path used for log lines correlated with the active span.
func BenchmarkPreEncodedAppend(b *testing.B) {
	snap := benchSnapshot()
	pre := ctrace.JSONEncoder{}.PreEncode(&snap)
	rec := ctrace.LogRecord{
		Timestamp: time.UnixMilli(1700000000005),
		Fields:    []log.Field{log.String("message", "cache miss"), log.Int("attempt", 2)},
	}
	buf := make([]byte, 0, 512)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf = pre.Append(buf[:0], &rec)
	}
	b.SetBytes(int64(len(buf)))
}

// BenchmarkAppendContextLog measures the tracer-level correlated log path.
func BenchmarkAppendContextLog(b *testing.B) {
	tracer := newDiscardTracer(b, ctrace.WithLogger(ctrace.NopLogger{}))
	ctx, active := tracer.StartSpan(context.Background(), "request")
	defer active.Deactivate()
	buf := make([]byte, 0, 512)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, _ = tracer.AppendContextLog(buf[:0], ctx, log.String("message", "hello"))
	}
}

// BenchmarkPropagation measures inject and extract over HTTP headers.
func BenchmarkPropagation(b *testing.B) {
	p := ctrace.NewPropagator(ctrace.PropagatorConfig{})
	sc := ctrace.NewSpanContext("0123456789abcdef", "fedcba9876543210", map[string]string{"tenant": "acme"})

	b.Run("inject", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			h := make(http.Header, 4)
			_ = p.Inject(sc, opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h))
		}
	})

	h := make(http.Header)
	_ = p.Inject(sc, opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h))
	h.Set("X-Request-Id", "ignored-alias")

	b.Run("extract", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = p.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h))
		}
	})
}
