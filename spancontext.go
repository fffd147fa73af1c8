package ctrace

import (
	"sort"
	"sync"
)

// BaggageItem is one key/value pair of a SpanContext's baggage.
type BaggageItem struct {
	Key   string
	Value string
}

// SpanContext carries the identity of a span and the baggage that propagates
// to its descendants and across process boundaries.
//
// The trace and span ids never change after construction. Baggage may be
// added or overwritten, never removed. A child receives a copy of its
// parent's baggage, so later writes on either side stay local.
//
// SpanContext satisfies opentracing.SpanContext.
type SpanContext struct {
	traceID string
	spanID  string
	mu      sync.RWMutex
	index   map[string]int
	baggage []BaggageItem
}

// NewSpanContext reconstructs a context received from another process.
// Baggage keys are stored in sorted order.
func NewSpanContext(traceID, spanID string, baggage map[string]string) *SpanContext {
	sc := &SpanContext{traceID: traceID, spanID: spanID}
	if len(baggage) == 0 {
		return sc
	}
	keys := make([]string, 0, len(baggage))
	for k := range baggage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sc.setBaggage(k, baggage[k])
	}
	return sc
}

// newRootContext starts a new trace.
func newRootContext(gen IDGenerator) *SpanContext {
	return &SpanContext{traceID: gen.NewID(), spanID: gen.NewID()}
}

// newChildContext shares the parent's trace id, takes a fresh span id and a
// deep copy of the parent's baggage.
func newChildContext(parent *SpanContext, gen IDGenerator) *SpanContext {
	sc := &SpanContext{traceID: parent.traceID, spanID: gen.NewID()}
	for _, item := range parent.BaggageItems() {
		sc.setBaggage(item.Key, item.Value)
	}
	return sc
}

// TraceID returns the id shared by every span in the trace.
func (sc *SpanContext) TraceID() string { return sc.traceID }

// SpanID returns the id of the span owning this context. It may be empty
// for contexts extracted from carriers that only carried a trace id.
func (sc *SpanContext) SpanID() string { return sc.spanID }

// SetBaggageItem adds or overwrites a baggage entry.
func (sc *SpanContext) SetBaggageItem(key, value string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.setBaggage(key, value)
}

func (sc *SpanContext) setBaggage(key, value string) {
	if i, ok := sc.index[key]; ok {
		sc.baggage[i].Value = value
		return
	}
	if sc.index == nil {
		sc.index = make(map[string]int)
	}
	sc.index[key] = len(sc.baggage)
	sc.baggage = append(sc.baggage, BaggageItem{Key: key, Value: value})
}

// BaggageItem returns the value stored under key.
func (sc *SpanContext) BaggageItem(key string) (string, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	i, ok := sc.index[key]
	if !ok {
		return "", false
	}
	return sc.baggage[i].Value, true
}

// BaggageItems returns a copy of the baggage in insertion order, or nil when
// there is none.
func (sc *SpanContext) BaggageItems() []BaggageItem {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	if len(sc.baggage) == 0 {
		return nil
	}
	out := make([]BaggageItem, len(sc.baggage))
	copy(out, sc.baggage)
	return out
}

// ForeachBaggageItem calls handler for each baggage entry until it returns false.
func (sc *SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for _, item := range sc.BaggageItems() {
		if !handler(item.Key, item.Value) {
			return
		}
	}
}
