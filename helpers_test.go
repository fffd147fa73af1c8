package ctrace

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// epoch is the start time of fake clocks in tests: 123 ms after the Unix
// epoch, matching the wire examples.
var epoch = time.UnixMilli(123)

// seqIDs returns a generator yielding 0000000000000001, 0000000000000002, ...
func seqIDs() IDGenerator {
	var n atomic.Uint64
	return IDGeneratorFunc(func() string {
		return fmt.Sprintf("%016x", n.Add(1))
	})
}

// newTestTracer returns a tracer reporting into a synchronous collector,
// with sequential ids and no id pool.
func newTestTracer(t *testing.T, clock clockz.Clock, opts ...Option) (*Tracer, *Collector) {
	t.Helper()

	collector := NewCollector("test", 64)
	collector.SetSyncMode(true)
	t.Cleanup(collector.Close)

	base := []Option{
		WithServiceName("TestService"),
		WithReporter(collector),
		WithClock(clock),
		WithIDGenerator(seqIDs()),
		WithIDPool(0),
	}
	tracer := New(append(base, opts...)...)
	t.Cleanup(func() { _ = tracer.Close() })
	return tracer, collector
}

// recordingLogger remembers every event it receives.
type recordingLogger struct {
	events []string
}

func (r *recordingLogger) Start(span *Span, rec LogRecord) {
	r.events = append(r.events, "start:"+span.OperationName()+":"+rec.Event())
}

func (r *recordingLogger) Activate(span *Span) {
	r.events = append(r.events, "activate:"+span.OperationName())
}

func (r *recordingLogger) Log(span *Span, rec LogRecord) {
	r.events = append(r.events, "log:"+span.OperationName()+":"+rec.Event())
}

func (r *recordingLogger) Finish(span *Span, rec LogRecord) {
	r.events = append(r.events, "finish:"+span.OperationName()+":"+rec.Event())
}

func (r *recordingLogger) String() string {
	return strings.Join(r.events, ",")
}
