package ctrace

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/opentracing/opentracing-go"
)

// Canonical carrier keys. Header-style carriers use the capitalized forms,
// text-map carriers the lowercase ones. Extraction matches either form
// case-insensitively.
const (
	TraceIDHeader       = "Ct-Trace-Id"
	SpanIDHeader        = "Ct-Span-Id"
	BaggageHeaderPrefix = "Ct-Bag-"

	TraceIDKey       = "ct-trace-id"
	SpanIDKey        = "ct-span-id"
	BaggageKeyPrefix = "ct-bag-"
)

// DefaultTraceIDExtractHeaders are the header aliases accepted as a trace id
// on extraction, in addition to TraceIDHeader.
var DefaultTraceIDExtractHeaders = []string{
	"x-correlation-id",
	"x_correlation_id",
	"correlation-id",
	"correlation_id",
	"correlationid",
	"x-trace-id",
	"x_trace_id",
	"trace-id",
	"trace_id",
	"traceid",
}

// DefaultSpanIDExtractHeaders are the header aliases accepted as a span id
// on extraction, in addition to SpanIDHeader.
var DefaultSpanIDExtractHeaders = []string{
	"x-request-id",
	"x_request_id",
	"request-id",
	"request_id",
	"requestid",
	"x-span-id",
	"x_span_id",
	"span-id",
	"span_id",
	"spanid",
}

// PropagatorConfig selects the header names a Propagator uses.
type PropagatorConfig struct {
	// TraceIDInjectHeaders and SpanIDInjectHeaders are written, verbatim,
	// next to the canonical headers on header-style injection.
	TraceIDInjectHeaders []string
	SpanIDInjectHeaders  []string

	// TraceIDExtractHeaders and SpanIDExtractHeaders are matched
	// case-insensitively on header-style extraction. Nil selects the
	// defaults; an empty non-nil slice disables aliases.
	TraceIDExtractHeaders []string
	SpanIDExtractHeaders  []string
}

// Propagator moves a SpanContext in and out of textual carriers.
//
// Two formats are supported: opentracing.HTTPHeaders writes the canonical
// Ct-* headers plus any configured aliases and reads aliases back;
// opentracing.TextMap uses only the lowercase canonical keys. Carriers must
// implement opentracing.TextMapWriter for Inject and
// opentracing.TextMapReader for Extract.
type Propagator struct {
	traceIDInject  []string
	spanIDInject   []string
	traceIDExtract map[string]struct{}
	spanIDExtract  map[string]struct{}
}

// NewPropagator builds a Propagator from cfg.
func NewPropagator(cfg PropagatorConfig) *Propagator {
	traceExtract := cfg.TraceIDExtractHeaders
	if traceExtract == nil {
		traceExtract = DefaultTraceIDExtractHeaders
	}
	spanExtract := cfg.SpanIDExtractHeaders
	if spanExtract == nil {
		spanExtract = DefaultSpanIDExtractHeaders
	}
	return &Propagator{
		traceIDInject:  append([]string(nil), cfg.TraceIDInjectHeaders...),
		spanIDInject:   append([]string(nil), cfg.SpanIDInjectHeaders...),
		traceIDExtract: lowerSet(traceExtract),
		spanIDExtract:  lowerSet(spanExtract),
	}
}

func lowerSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

// Inject writes sc into carrier.
//
// Unknown formats return opentracing.ErrUnsupportedFormat; carriers that do
// not implement opentracing.TextMapWriter return opentracing.ErrInvalidCarrier.
func (p *Propagator) Inject(sc *SpanContext, format, carrier any) error {
	var headers bool
	switch format {
	case opentracing.HTTPHeaders:
		headers = true
	case opentracing.TextMap:
	default:
		return fmt.Errorf("inject %v: %w", format, opentracing.ErrUnsupportedFormat)
	}

	w, ok := carrier.(opentracing.TextMapWriter)
	if !ok {
		return fmt.Errorf("inject %T: %w", carrier, opentracing.ErrInvalidCarrier)
	}

	traceID, spanID := sc.TraceID(), sc.SpanID()
	if !headers {
		for _, item := range sc.BaggageItems() {
			w.Set(BaggageKeyPrefix+item.Key, item.Value)
		}
		if spanID != "" {
			w.Set(SpanIDKey, spanID)
		}
		w.Set(TraceIDKey, traceID)
		return nil
	}

	for _, item := range sc.BaggageItems() {
		w.Set(BaggageHeaderPrefix+item.Key, item.Value)
	}
	if spanID != "" {
		w.Set(SpanIDHeader, spanID)
	}
	w.Set(TraceIDHeader, traceID)
	for _, h := range p.traceIDInject {
		w.Set(h, traceID)
	}
	if spanID != "" {
		for _, h := range p.spanIDInject {
			w.Set(h, spanID)
		}
	}
	return nil
}

// Extract reads a SpanContext from carrier in a single pass over its
// entries.
//
// Canonical keys take precedence over aliases. Among aliases the first one
// encountered wins, so the result depends on the carrier's iteration order
// when several aliases are present. Baggage keys keep their original case
// after the prefix. A carrier without a trace id yields (nil, nil).
func (p *Propagator) Extract(format, carrier any) (*SpanContext, error) {
	var headers bool
	switch format {
	case opentracing.HTTPHeaders:
		headers = true
	case opentracing.TextMap:
	default:
		return nil, fmt.Errorf("extract %v: %w", format, opentracing.ErrUnsupportedFormat)
	}

	r, ok := carrier.(opentracing.TextMapReader)
	if !ok {
		return nil, fmt.Errorf("extract %T: %w", carrier, opentracing.ErrInvalidCarrier)
	}

	var (
		traceID, spanID           string
		aliasTrace, aliasSpan     string
		haveTrace, haveSpan       bool
		haveAliasTrace, haveAlias bool
		baggage                   map[string]string
	)
	err := r.ForeachKey(func(key, val string) error {
		lower := strings.ToLower(key)
		switch {
		case lower == TraceIDKey:
			traceID, haveTrace = val, true
		case lower == SpanIDKey:
			spanID, haveSpan = val, true
		case strings.HasPrefix(lower, BaggageKeyPrefix):
			if baggage == nil {
				baggage = make(map[string]string)
			}
			baggage[key[len(BaggageKeyPrefix):]] = val
		case !headers:
		case !haveAliasTrace && p.isTraceAlias(lower):
			aliasTrace, haveAliasTrace = val, true
		case !haveAlias && p.isSpanAlias(lower):
			aliasSpan, haveAlias = val, true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	if !haveTrace && haveAliasTrace {
		traceID, haveTrace = aliasTrace, true
	}
	if !haveSpan && haveAlias {
		spanID = aliasSpan
	}
	if !haveTrace {
		return nil, nil
	}
	return NewSpanContext(traceID, spanID, baggage), nil
}

func (p *Propagator) isTraceAlias(lower string) bool {
	_, ok := p.traceIDExtract[lower]
	return ok
}

func (p *Propagator) isSpanAlias(lower string) bool {
	_, ok := p.spanIDExtract[lower]
	return ok
}

// InjectHTTP writes sc into HTTP headers.
func (p *Propagator) InjectHTTP(sc *SpanContext, h http.Header) {
	// HTTPHeadersCarrier always satisfies TextMapWriter.
	_ = p.Inject(sc, opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h))
}

// ExtractHTTP reads a SpanContext from HTTP headers. It returns nil when the
// headers carry no trace id.
func (p *Propagator) ExtractHTTP(h http.Header) *SpanContext {
	sc, _ := p.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h))
	return sc
}
