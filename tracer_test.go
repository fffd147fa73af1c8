package ctrace

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewTracerDefaults(t *testing.T) {
	t.Setenv(ServiceNameEnv, "from-env")

	tracer := New()
	defer tracer.Close()

	if tracer.ServiceName() != "from-env" {
		t.Errorf("Expected service name from env, got %q", tracer.ServiceName())
	}
	if tracer.SingleEventOutput() {
		t.Error("Default output should be multi-event")
	}
	if _, ok := tracer.Logger().(*StreamLogger); !ok {
		t.Errorf("Expected a StreamLogger, got %T", tracer.Logger())
	}
}

func TestNewTracerLegacyServiceEnv(t *testing.T) {
	t.Setenv(ServiceNameEnv, "")
	t.Setenv("ctrace_service_name", "legacy")

	tracer := New()
	defer tracer.Close()

	if tracer.ServiceName() != "legacy" {
		t.Errorf("Expected legacy service name, got %q", tracer.ServiceName())
	}
}

func TestTracerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	clock := clockz.NewFakeClockAt(epoch)
	tracer := New(
		WithServiceName("svc"),
		WithWriter(&buf),
		WithClock(clock),
		WithIDGenerator(seqIDs()),
		WithIDPool(0),
	)
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "op")
	clock.Advance(time.Millisecond)
	span.Deactivate()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[1], `"finish":124,"duration":1,"log":{"timestamp":124,"event":"Stop-Span"}}`) {
		t.Errorf("Unexpected finish line: %s", lines[1])
	}
}

func TestTracerWithFakeClock(t *testing.T) {
	fakeClock := clockz.NewFakeClockAt(time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC))
	tracer, _ := newTestTracer(t, fakeClock, WithLogger(NopLogger{}))

	_, active := tracer.StartSpan(context.Background(), "test-operation")
	startTime := active.Span().StartTime()

	advancement := 100 * time.Millisecond
	fakeClock.Advance(advancement)
	active.Deactivate()

	if active.Span().Duration() != advancement {
		t.Errorf("Expected duration %v, got %v", advancement, active.Span().Duration())
	}
	if !active.Span().FinishTime().Equal(startTime.Add(advancement)) {
		t.Errorf("Expected end time %v, got %v", startTime.Add(advancement), active.Span().FinishTime())
	}
}

func TestTracerIDPoolIntegration(t *testing.T) {
	tracer := New(WithLogger(NopLogger{}), WithIDPool(16))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		span := tracer.BuildSpan("op").Start(context.Background())
		if seen[span.SpanID()] {
			t.Fatalf("Duplicate span id %s", span.SpanID())
		}
		seen[span.SpanID()] = true
		if len(span.SpanID()) != 16 {
			t.Errorf("Expected 16-character id, got %q", span.SpanID())
		}
	}
	if err := tracer.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Spans still get ids after Close.
	if span := tracer.BuildSpan("late").Start(context.Background()); span.SpanID() == "" {
		t.Error("Expected an id after Close")
	}
}

func TestTracerCloseWithPools(t *testing.T) {
	before := runtime.NumGoroutine()

	tracer := New(WithLogger(NopLogger{}), WithIDPool(8))
	tracer.BuildSpan("op").Start(context.Background())
	_ = tracer.Close()
	_ = tracer.Close()

	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before {
		t.Errorf("Goroutine leak detected after tracer close: %d -> %d", before, after)
	}
}

func TestTracerCloseBeforeUse(t *testing.T) {
	tracer := New(WithLogger(NopLogger{}))
	_ = tracer.Close()

	if span := tracer.BuildSpan("op").Start(context.Background()); span.TraceID() == "" {
		t.Error("Expected ids from the generator after Close")
	}
}

type panickingLogger struct{ NopLogger }

func (panickingLogger) Start(*Span, LogRecord) { panic("logger exploded") }

func TestTracerRecoversLoggerPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	tracer := New(
		WithLogger(panickingLogger{}),
		WithDiagnostics(zap.New(core)),
		WithIDPool(0),
	)
	defer tracer.Close()

	var mu sync.Mutex
	var recovered []any
	tracer.SetPanicHook(func(r any) {
		mu.Lock()
		defer mu.Unlock()
		recovered = append(recovered, r)
	})

	span := tracer.BuildSpan("op").Start(context.Background())
	span.Finish()

	if len(recovered) != 1 || recovered[0] != "logger exploded" {
		t.Errorf("Expected one recovered panic, got %v", recovered)
	}
	if logs.FilterMessage("span logger panicked").Len() != 1 {
		t.Errorf("Expected a diagnostic entry, got %d", logs.Len())
	}
	if !span.IsFinished() {
		t.Error("Span should finish despite the panic")
	}
}

type failingReporter struct{}

func (failingReporter) Report([]byte) error { return errors.New("disk full") }
func (failingReporter) Flush() error        { return nil }

func TestTracerSwallowsReportErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tracer := New(
		WithReporter(failingReporter{}),
		WithDiagnostics(zap.New(core)),
		WithIDPool(0),
	)
	defer tracer.Close()

	span := tracer.BuildSpan("op").Start(context.Background())
	span.LogEvent("work")
	span.Finish()

	if got := logs.FilterMessage("report failed").Len(); got != 3 {
		t.Errorf("Expected 3 report failures, got %d", got)
	}
}

func TestTracerInjectExtract(t *testing.T) {
	clock := clockz.NewFakeClockAt(epoch)
	tracer, _ := newTestTracer(t, clock,
		WithLogger(NopLogger{}),
		WithTraceIDInjectHeaders("X-Correlation-Id"),
		WithSpanIDInjectHeaders("X-Request-Id"),
	)

	span := tracer.BuildSpan("client").Start(context.Background())
	// http.Header canonicalizes names, so baggage keys come back as Tenant.
	span.SetBaggageItem("Tenant", "acme")

	h := make(http.Header)
	if err := tracer.Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h)); err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	if h.Get("X-Correlation-Id") != span.TraceID() || h.Get("X-Request-Id") != span.SpanID() {
		t.Errorf("Alias headers not written: %v", h)
	}

	sc, err := tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	server := tracer.BuildSpan("server").AsChildOf(sc).Start(context.Background())
	if server.TraceID() != span.TraceID() || server.ParentID() != span.SpanID() {
		t.Errorf("Server span not joined to client trace: %s/%s", server.TraceID(), server.ParentID())
	}
	if v, _ := server.BaggageItem("Tenant"); v != "acme" {
		t.Errorf("Baggage lost across the boundary, got %q", v)
	}
}

func TestTracerConcurrentSpanCreation(t *testing.T) {
	tracer := New(WithLogger(NopLogger{}))
	defer tracer.Close()

	const goroutines = 10
	const spansPerGoroutine = 100

	var mu sync.Mutex
	ids := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < spansPerGoroutine; j++ {
				ctx, parent := tracer.StartSpan(context.Background(), "parent")
				_, child := tracer.StartSpan(ctx, "child")
				child.Deactivate()
				parent.Deactivate()

				mu.Lock()
				ids[parent.SpanID()] = true
				ids[child.SpanID()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(ids) != 2*goroutines*spansPerGoroutine {
		t.Errorf("Expected %d unique span ids, got %d", 2*goroutines*spansPerGoroutine, len(ids))
	}
}

func TestTracerMultiLoggerIsolatesPanics(t *testing.T) {
	clock := clockz.NewFakeClockAt(epoch)
	recorder := &recordingLogger{}
	tracer, collector := newTestTracer(t, clock)
	tracer.logger = MultiLogger{panickingLogger{}, recorder, tracer.logger}

	panics := 0
	tracer.SetPanicHook(func(any) { panics++ })

	_, active := tracer.StartSpan(context.Background(), "op")
	active.Deactivate()

	if panics != 1 {
		t.Errorf("Expected 1 recovered panic, got %d", panics)
	}
	if got := recorder.String(); got != "start:op:Start-Span,activate:op,finish:op:Stop-Span" {
		t.Errorf("Unexpected events: %s", got)
	}
	if n := len(collector.Export()); n != 2 {
		t.Errorf("Expected 2 records after the panicking member, got %d", n)
	}
}
