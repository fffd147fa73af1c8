package ctrace

import (
	"context"
	"sync/atomic"

	"github.com/opentracing/opentracing-go/log"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "ctrace"
)

// contextBundle holds both tracer and active span to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	active *ActiveSpan
}

// ActiveSpan marks a Span as the current span of a context.Context.
//
// Activation nests: the handle remembers the span that was active in the
// parent context, and a context derived from the parent sees that span again
// once the handle is dropped. Handles share a reference count with every
// Continuation captured from them. Deactivate releases this handle's
// reference; the span finishes when the last reference is released.
type ActiveSpan struct {
	span        *Span
	tracer      *Tracer
	refs        *atomic.Int32
	previous    *ActiveSpan
	deactivated atomic.Bool
}

func newActiveSpan(t *Tracer, span *Span, refs *atomic.Int32, previous *ActiveSpan) *ActiveSpan {
	return &ActiveSpan{
		span:     span,
		tracer:   t,
		refs:     refs,
		previous: previous,
	}
}

// Activate makes span the active span of the returned context. The handle
// owns one reference; Deactivate on it finishes the span unless a
// Continuation still holds another.
func (t *Tracer) Activate(ctx context.Context, span *Span) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}
	refs := new(atomic.Int32)
	refs.Store(1)

	active := newActiveSpan(t, span, refs, ActiveSpanFromContext(ctx))
	t.dispatch(func(l Logger) { l.Activate(span) })
	return active.WithContext(ctx), active
}

// ActiveSpan returns the span active in ctx, or nil.
func (t *Tracer) ActiveSpan(ctx context.Context) *ActiveSpan {
	return ActiveSpanFromContext(ctx)
}

// ActiveSpanFromContext extracts the active span from a context.
// Returns nil if no span is active.
func ActiveSpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.active
	}
	return nil
}

// TracerFromContext returns the tracer whose span is active in ctx, or nil.
// Code handed only a context uses it to start spans on the same tracer.
func TracerFromContext(ctx context.Context) *Tracer {
	if ctx == nil {
		return nil
	}
	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.tracer
	}
	return nil
}

// SpanFromContext returns the Span active in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if active := ActiveSpanFromContext(ctx); active != nil {
		return active.span
	}
	return nil
}

// WithContext creates a new context with this span active.
// The returned context can be used to start child spans.
func (a *ActiveSpan) WithContext(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	bundle := &contextBundle{tracer: a.tracer, active: a}
	return context.WithValue(parent, bundleKey, bundle)
}

// Span returns the wrapped span.
func (a *ActiveSpan) Span() *Span { return a.span }

// Previous returns the span that was active when this one was activated.
func (a *ActiveSpan) Previous() *ActiveSpan { return a.previous }

// Context returns the SpanContext of the wrapped span.
func (a *ActiveSpan) Context() *SpanContext { return a.span.Context() }

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string { return a.span.TraceID() }

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string { return a.span.SpanID() }

// SetOperationName renames the wrapped span.
func (a *ActiveSpan) SetOperationName(name string) *ActiveSpan {
	a.span.SetOperationName(name)
	return a
}

// SetTag sets a string tag on the wrapped span.
func (a *ActiveSpan) SetTag(key, value string) *ActiveSpan {
	a.span.SetTag(key, value)
	return a
}

// SetBoolTag sets a boolean tag on the wrapped span.
func (a *ActiveSpan) SetBoolTag(key string, value bool) *ActiveSpan {
	a.span.SetBoolTag(key, value)
	return a
}

// SetIntTag sets an integer tag on the wrapped span.
func (a *ActiveSpan) SetIntTag(key string, value int64) *ActiveSpan {
	a.span.SetIntTag(key, value)
	return a
}

// SetFloatTag sets a floating point tag on the wrapped span.
func (a *ActiveSpan) SetFloatTag(key string, value float64) *ActiveSpan {
	a.span.SetFloatTag(key, value)
	return a
}

// GetTag retrieves a tag value by key.
func (a *ActiveSpan) GetTag(key string) (TagValue, bool) { return a.span.GetTag(key) }

// SetBaggageItem stores a baggage entry on the wrapped span.
func (a *ActiveSpan) SetBaggageItem(key, value string) *ActiveSpan {
	a.span.SetBaggageItem(key, value)
	return a
}

// BaggageItem returns a baggage entry of the wrapped span.
func (a *ActiveSpan) BaggageItem(key string) (string, bool) { return a.span.BaggageItem(key) }

// LogEvent records an event on the wrapped span.
func (a *ActiveSpan) LogEvent(event string) { a.span.LogEvent(event) }

// LogFields records fields on the wrapped span.
func (a *ActiveSpan) LogFields(fields ...log.Field) { a.span.LogFields(fields...) }

// LogKV records alternating key/value pairs on the wrapped span.
func (a *ActiveSpan) LogKV(alternatingKeyValues ...any) { a.span.LogKV(alternatingKeyValues...) }

// Capture takes an extra reference on the span and returns a Continuation
// that can resume it in another goroutine. The span stays unfinished until
// the continuation is activated and deactivated, or released.
func (a *ActiveSpan) Capture() *Continuation {
	a.refs.Add(1)
	return &Continuation{span: a.span, tracer: a.tracer, refs: a.refs}
}

// Deactivate releases this handle's reference and finishes the span when
// it was the last one. Only the first call on a handle counts.
func (a *ActiveSpan) Deactivate() {
	if !a.deactivated.CompareAndSwap(false, true) {
		return
	}
	release(a.span, a.refs)
}

// References returns the number of outstanding references on the span.
func (a *ActiveSpan) References() int32 { return a.refs.Load() }

func release(span *Span, refs *atomic.Int32) {
	if refs.Add(-1) == 0 {
		span.Finish()
	}
}

// Continuation is a captured reference to an active span, meant to be handed
// to another goroutine and resumed there.
type Continuation struct {
	span   *Span
	tracer *Tracer
	refs   *atomic.Int32
	used   atomic.Bool
}

// Activate makes the captured span active in ctx. The returned handle
// inherits the reference taken by Capture, so the count is unchanged and
// the span's start event is not repeated. A continuation activates once;
// later calls return a handle whose Deactivate does nothing.
func (c *Continuation) Activate(ctx context.Context) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}
	active := newActiveSpan(c.tracer, c.span, c.refs, ActiveSpanFromContext(ctx))
	if !c.used.CompareAndSwap(false, true) {
		active.deactivated.Store(true)
	}
	c.tracer.dispatch(func(l Logger) { l.Activate(c.span) })
	return active.WithContext(ctx), active
}

// Release drops the captured reference without activating it. It does
// nothing once the continuation has been activated or released.
func (c *Continuation) Release() {
	if !c.used.CompareAndSwap(false, true) {
		return
	}
	release(c.span, c.refs)
}

// Span returns the captured span.
func (c *Continuation) Span() *Span { return c.span }
