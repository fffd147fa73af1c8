package ctrace

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// ServiceNameEnv names the environment variable that supplies the default
// service name. The lowercase form is read as a fallback.
const ServiceNameEnv = "CTRACE_SERVICE_NAME"

func defaultServiceName() string {
	if name := os.Getenv(ServiceNameEnv); name != "" {
		return name
	}
	return os.Getenv(strings.ToLower(ServiceNameEnv))
}

// Tracer creates spans and moves their contexts across process boundaries.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	logger            Logger
	propagator        *Propagator
	generator         IDGenerator
	idPool            *IDPool
	clock             clockz.Clock
	metrics           *Metrics
	diag              *zap.Logger
	panicHook         func(r any)
	closer            io.Closer
	serviceName       string
	idPoolSize        int
	idPoolOnce        sync.Once
	singleEventOutput bool
}

// Option configures a Tracer.
type Option func(*options)

type options struct {
	logger      Logger
	reporter    Reporter
	propagator  *Propagator
	headers     PropagatorConfig
	generator   IDGenerator
	clock       clockz.Clock
	metrics     *Metrics
	diag        *zap.Logger
	serviceName string
	poolSize    int
	single      bool
}

// WithServiceName sets the service reported on every span. The default is
// read from CTRACE_SERVICE_NAME.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithLogger sets the collaborator that receives span lifecycle events.
// It takes precedence over WithReporter and WithWriter.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReporter streams JSON-encoded records to r.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithWriter streams JSON-encoded records to w.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.reporter = NewWriterReporter(w) }
}

// WithSingleEventOutput buffers span logs and reports each span once, at
// finish. The default reports every lifecycle event separately.
func WithSingleEventOutput(single bool) Option {
	return func(o *options) { o.single = single }
}

// WithPropagator replaces the propagator. It overrides the header options.
func WithPropagator(p *Propagator) Option {
	return func(o *options) { o.propagator = p }
}

// WithTraceIDInjectHeaders adds header names written with the trace id.
func WithTraceIDInjectHeaders(headers ...string) Option {
	return func(o *options) { o.headers.TraceIDInjectHeaders = headers }
}

// WithSpanIDInjectHeaders adds header names written with the span id.
func WithSpanIDInjectHeaders(headers ...string) Option {
	return func(o *options) { o.headers.SpanIDInjectHeaders = headers }
}

// WithTraceIDExtractHeaders replaces the header aliases read as a trace id.
func WithTraceIDExtractHeaders(headers ...string) Option {
	return func(o *options) { o.headers.TraceIDExtractHeaders = nonNil(headers) }
}

// WithSpanIDExtractHeaders replaces the header aliases read as a span id.
func WithSpanIDExtractHeaders(headers ...string) Option {
	return func(o *options) { o.headers.SpanIDExtractHeaders = nonNil(headers) }
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// WithIDGenerator sets the source of trace and span ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.generator = g }
}

// WithIDPool sets how many ids are generated ahead of time. Zero disables
// the pool and calls the generator on every span.
func WithIDPool(size int) Option {
	return func(o *options) { o.poolSize = size }
}

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithMetrics records span and reporting counters in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDiagnostics sets the logger for the tracer's own problems, such as
// failed reports and panicking collaborators. The default discards them.
func WithDiagnostics(l *zap.Logger) Option {
	return func(o *options) { o.diag = l }
}

// New creates a tracer. Without options it reports every span event as a
// JSON line on standard output.
func New(opts ...Option) *Tracer {
	o := options{
		serviceName: defaultServiceName(),
		generator:   HexGenerator{},
		clock:       clockz.RealClock,
		poolSize:    runtime.NumCPU() * 100,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.diag == nil {
		o.diag = zap.NewNop()
	}
	if o.propagator == nil {
		o.propagator = NewPropagator(o.headers)
	}
	if o.logger == nil {
		if o.reporter == nil {
			o.reporter = NewWriterReporter(os.Stdout)
		}
		o.logger = NewStreamLogger(o.reporter)
	}

	return &Tracer{
		logger:            o.logger,
		propagator:        o.propagator,
		generator:         o.generator,
		clock:             o.clock,
		metrics:           o.metrics,
		diag:              o.diag,
		serviceName:       o.serviceName,
		idPoolSize:        o.poolSize,
		singleEventOutput: o.single,
	}
}

// ServiceName returns the service reported on spans.
func (t *Tracer) ServiceName() string { return t.serviceName }

// SingleEventOutput reports whether spans are reported once, at finish.
func (t *Tracer) SingleEventOutput() bool { return t.singleEventOutput }

// Propagator returns the tracer's propagator.
func (t *Tracer) Propagator() *Propagator { return t.propagator }

// Logger returns the collaborator receiving span events.
func (t *Tracer) Logger() Logger { return t.logger }

// SetPanicHook sets a function to be called when the logger panics.
// Set it before the tracer is shared.
func (t *Tracer) SetPanicHook(hook func(r any)) {
	t.panicHook = hook
}

// StartSpan creates a new span and returns it activated in the returned
// context. If the context holds an active span, the new span is its child.
func (t *Tracer) StartSpan(ctx context.Context, operation string) (context.Context, *ActiveSpan) {
	return t.BuildSpan(operation).StartActive(ctx)
}

// Inject writes sc into carrier using the tracer's propagator.
func (t *Tracer) Inject(sc *SpanContext, format, carrier any) error {
	return t.propagator.Inject(sc, format, carrier)
}

// Extract reads a SpanContext from carrier using the tracer's propagator.
// A carrier without a trace id yields (nil, nil).
func (t *Tracer) Extract(format, carrier any) (*SpanContext, error) {
	return t.propagator.Extract(format, carrier)
}

// idGenerator returns the pooled generator, creating the pool on first use.
func (t *Tracer) idGenerator() IDGenerator {
	if t.idPoolSize <= 0 {
		return t.generator
	}
	t.idPoolOnce.Do(func() {
		t.idPool = NewIDPool(t.idPoolSize, t.generator)
	})
	if t.idPool == nil {
		// Closed before first use.
		return t.generator
	}
	return t.idPool
}

// dispatch calls the logger, turning a panic into a diagnostic. Each
// member of a MultiLogger is called and recovered on its own.
func (t *Tracer) dispatch(call func(Logger)) {
	if loggers, ok := t.logger.(MultiLogger); ok {
		for _, l := range loggers {
			t.safeCall(l, call)
		}
		return
	}
	t.safeCall(t.logger, call)
}

func (t *Tracer) safeCall(l Logger, call func(Logger)) {
	defer func() {
		if r := recover(); r != nil {
			t.diag.Error("span logger panicked", zap.Any("panic", r), zap.String("logger", fmt.Sprintf("%T", l)))
			if t.panicHook != nil {
				t.panicHook(r)
			}
		}
	}()
	call(l)
}

// flusher is implemented by loggers that buffer output.
type flusher interface {
	Flush() error
}

// Close stops the id pool, flushes the logger and closes an output file
// opened by NewFromConfig.
// This should be called when the tracer is no longer needed.
func (t *Tracer) Close() error {
	// Prevent a pool from being created after Close.
	t.idPoolOnce.Do(func() {})
	if t.idPool != nil {
		t.idPool.Close()
	}

	var err error
	if f, ok := t.logger.(flusher); ok {
		err = f.Flush()
	}
	if t.closer != nil {
		if cerr := t.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
		t.closer = nil
	}
	return err
}
