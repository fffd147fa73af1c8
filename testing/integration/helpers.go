package integration

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/ctrace"
)

// Record is one decoded wire record.
type Record struct {
	TraceID   string            `json:"traceId"`
	SpanID    string            `json:"spanId"`
	ParentID  string            `json:"parentId"`
	Service   string            `json:"service"`
	Operation string            `json:"operation"`
	Start     int64             `json:"start"`
	Finish    *int64            `json:"finish"`
	Duration  *int64            `json:"duration"`
	Log       map[string]any    `json:"log"`
	Logs      []map[string]any  `json:"logs"`
	Tags      map[string]any    `json:"tags"`
	Baggage   map[string]string `json:"baggage"`
}

// Finished reports whether the record carries finish fields.
func (r Record) Finished() bool { return r.Finish != nil }

// Event returns the event of the record's single log.
func (r Record) Event() string {
	s, _ := r.Log["event"].(string)
	return s
}

// MockCollector wraps a real collector with decoding and wait helpers.
type MockCollector struct {
	*ctrace.Collector
	t        *testing.T
	exported []Record
	mu       sync.Mutex
}

// NewMockCollector creates a synchronous collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := ctrace.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	t.Cleanup(collector.Close)
	return &MockCollector{Collector: collector, t: t}
}

// Records decodes and returns the buffered records, clearing the buffer.
func (m *MockCollector) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw := m.Collector.Export()
	records := make([]Record, 0, len(raw))
	for _, line := range raw {
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			m.t.Fatalf("record is not valid JSON: %v\n%s", err, line)
		}
		records = append(records, r)
	}
	m.exported = append(m.exported, records...)
	return records
}

// All returns every record decoded so far, including ones still buffered.
func (m *MockCollector) All() []Record {
	m.Records()

	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]Record, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForRecords waits until at least expected records were seen.
func (m *MockCollector) WaitForRecords(expected int, timeout time.Duration) []Record {
	deadline := time.Now().Add(timeout)
	for {
		all := m.All()
		if len(all) >= expected || time.Now().After(deadline) {
			return all
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Finished returns the finish records in all, keyed by span id.
func Finished(all []Record) map[string]Record {
	out := make(map[string]Record)
	for _, r := range all {
		if r.Finished() {
			out[r.SpanID] = r
		}
	}
	return out
}

// NewTestTracer returns a tracer reporting into a MockCollector, on a fake
// clock when clock is not nil.
func NewTestTracer(t *testing.T, service string, clock clockz.Clock, opts ...ctrace.Option) (*ctrace.Tracer, *MockCollector) {
	t.Helper()

	collector := NewMockCollector(t, service, 1024)
	base := []ctrace.Option{
		ctrace.WithServiceName(service),
		ctrace.WithReporter(collector),
	}
	if clock != nil {
		base = append(base, ctrace.WithClock(clock))
	}
	tracer := ctrace.New(append(base, opts...)...)
	t.Cleanup(func() { _ = tracer.Close() })
	return tracer, collector
}

// AssertParentChild fails unless child is a child of parent in the same trace.
func AssertParentChild(t *testing.T, parent, child Record) {
	t.Helper()
	if child.TraceID != parent.TraceID {
		t.Errorf("Child %s in trace %s, parent %s in trace %s", child.Operation, child.TraceID, parent.Operation, parent.TraceID)
	}
	if child.ParentID != parent.SpanID {
		t.Errorf("Child %s has parent %q, expected %q", child.Operation, child.ParentID, parent.SpanID)
	}
}
