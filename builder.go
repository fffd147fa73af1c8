package ctrace

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
)

// SpanBuilder accumulates the options of a span before it starts.
// A builder is not safe for concurrent use and should be discarded after
// Start or StartActive.
type SpanBuilder struct {
	tracer       *Tracer
	parent       *SpanContext
	start        time.Time
	operation    string
	tags         tagSet
	ignoreActive bool
}

// BuildSpan returns a builder for a span named operation.
func (t *Tracer) BuildSpan(operation string) *SpanBuilder {
	return &SpanBuilder{tracer: t, operation: operation}
}

// AsChildOf sets the explicit parent. The last call wins; nil is ignored.
func (b *SpanBuilder) AsChildOf(parent *SpanContext) *SpanBuilder {
	if parent != nil {
		b.parent = parent
	}
	return b
}

// ChildOf sets the explicit parent to span's context.
func (b *SpanBuilder) ChildOf(span *Span) *SpanBuilder {
	if span == nil {
		return b
	}
	return b.AsChildOf(span.Context())
}

// AddReference records a reference to another span. Only ChildOf references
// set the parent; other reference types are ignored.
func (b *SpanBuilder) AddReference(refType opentracing.SpanReferenceType, ref *SpanContext) *SpanBuilder {
	if refType != opentracing.ChildOfRef {
		return b
	}
	return b.AsChildOf(ref)
}

// IgnoreActiveSpan stops the span from picking up the active span in the
// start context as its implicit parent.
func (b *SpanBuilder) IgnoreActiveSpan() *SpanBuilder {
	b.ignoreActive = true
	return b
}

// WithTag sets an initial string tag.
func (b *SpanBuilder) WithTag(key, value string) *SpanBuilder {
	b.tags.set(key, StringValue(value))
	return b
}

// WithBoolTag sets an initial boolean tag.
func (b *SpanBuilder) WithBoolTag(key string, value bool) *SpanBuilder {
	b.tags.set(key, BoolValue(value))
	return b
}

// WithIntTag sets an initial integer tag.
func (b *SpanBuilder) WithIntTag(key string, value int64) *SpanBuilder {
	b.tags.set(key, IntValue(value))
	return b
}

// WithFloatTag sets an initial floating point tag.
func (b *SpanBuilder) WithFloatTag(key string, value float64) *SpanBuilder {
	b.tags.set(key, FloatValue(value))
	return b
}

// WithStartTime overrides the start time, which defaults to the tracer's
// clock at Start.
func (b *SpanBuilder) WithStartTime(ts time.Time) *SpanBuilder {
	b.start = ts
	return b
}

// Start creates the span without activating it. The parent is the explicit
// one if set, otherwise the span active in ctx unless IgnoreActiveSpan was
// called, otherwise none and the span starts a new trace.
func (b *SpanBuilder) Start(ctx context.Context) *Span {
	parent := b.parent
	if parent == nil && !b.ignoreActive {
		if active := ActiveSpanFromContext(ctx); active != nil {
			parent = active.Context()
		}
	}

	start := b.start
	if start.IsZero() {
		start = b.tracer.clock.Now()
	}
	return newSpan(b.tracer, b.operation, start, b.tags.clone(), parent)
}

// StartActive creates the span and activates it in the returned context.
func (b *SpanBuilder) StartActive(ctx context.Context) (context.Context, *ActiveSpan) {
	span := b.Start(ctx)
	return b.tracer.Activate(ctx, span)
}
