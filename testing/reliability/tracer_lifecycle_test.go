package reliability

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/ctrace"
)

// Tracer lifecycle tests check that repeated create/use/close cycles do not
// leak goroutines and that spans outliving their tracer stay safe.

func TestTracerLifecycle(t *testing.T) {
	requireLevel(t)

	t.Run("repeated_create_close", testRepeatedCreateClose)
	t.Run("use_after_close", testUseAfterClose)
	t.Run("concurrent_close", testConcurrentClose)
}

func testRepeatedCreateClose(t *testing.T) {
	runtime.GC()
	before := runtime.NumGoroutine()

	for i := 0; i < 200; i++ {
		collector := ctrace.NewCollector("cycle", 16)
		tracer := ctrace.New(ctrace.WithServiceName("cycle"), ctrace.WithReporter(collector), ctrace.WithIDPool(8))
		_, span := tracer.StartSpan(context.Background(), "op")
		span.Deactivate()
		_ = tracer.Close()
		collector.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before {
		t.Errorf("Goroutine leak after lifecycle cycles: %d -> %d", before, after)
	}
}

func testUseAfterClose(t *testing.T) {
	collector := ctrace.NewCollector("late", 16)
	tracer := ctrace.New(ctrace.WithServiceName("late"), ctrace.WithReporter(collector))

	ctx, span := tracer.StartSpan(context.Background(), "open")
	c := span.Capture()
	_ = tracer.Close()
	collector.Close()

	// None of these may panic or block.
	_, child := tracer.StartSpan(ctx, "after-close")
	child.Deactivate()
	span.Deactivate()
	_, resumed := c.Activate(context.Background())
	resumed.Deactivate()

	if !span.Span().IsFinished() {
		t.Error("Span should finish after its last reference, even after close")
	}
}

func testConcurrentClose(t *testing.T) {
	tracer := ctrace.New(ctrace.WithServiceName("racy"), ctrace.WithLogger(ctrace.NopLogger{}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, span := tracer.StartSpan(context.Background(), "op")
			span.Deactivate()
		}()
		go func() {
			defer wg.Done()
			_ = tracer.Close()
		}()
	}
	wg.Wait()
}
