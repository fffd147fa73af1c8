// Package ctrace is a minimal distributed tracing client that writes spans
// as single-line JSON records.
//
// ctrace creates trace and span identifiers, carries them across process
// boundaries in HTTP headers or text maps, tracks the active span of a
// context.Context, and reports span lifecycle events to a Logger.
//
// Core Components:
//   - Tracer: Creates spans and owns the logger and propagator.
//   - Span: A timed unit of work with tags, logs and baggage.
//   - ActiveSpan: A span made current in a context, reference counted.
//   - Continuation: A captured ActiveSpan resumed in another goroutine.
//   - Propagator: Injects and extracts SpanContexts.
//   - JSONEncoder: Renders span records, with a pre-encoded fast path.
//
// Basic Usage:
//
//	tracer := ctrace.New(ctrace.WithServiceName("checkout"))
//	defer tracer.Close()
//
//	// Start a new span.
//	ctx, span := tracer.StartSpan(ctx, "operation-name")
//	defer span.Deactivate()
//
//	// Add metadata.
//	span.SetTag("user.id", "123")
//
//	// Pass context to child operations.
//	childCtx, child := tracer.StartSpan(ctx, "child-operation")
//	defer child.Deactivate()
//
// Output Modes:
//
// By default every lifecycle event (start, each log, finish) is reported as
// its own record with a "log" object. WithSingleEventOutput buffers logs and
// reports one record per span at finish, with a "logs" array.
//
// Handoff:
//
// An ActiveSpan finishes its span when its last reference is released.
// Capture takes an extra reference so work handed to another goroutine
// keeps the span open:
//
//	cont := span.Capture()
//	go func() {
//		_, resumed := cont.Activate(context.Background())
//		defer resumed.Deactivate()
//		// ...
//	}()
//
// Thread Safety:
//
// Tracer, Span and ActiveSpan are safe for concurrent use. SpanBuilder is
// not. Span.SetOperationName is meant for the owning goroutine.
//
// Resource Cleanup:
//
// Call tracer.Close() to stop the id pool and flush the output.
package ctrace
