package ctrace

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// Collector buffers encoded span records in memory for batch export.
// It implements Reporter, so it can back a StreamLogger directly.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	records      *queue.Queue
	recordsCh    chan string
	stopCh       chan struct{}
	done         chan struct{}
	metrics      *Metrics
	droppedCount atomic.Int64
	name         string
	limit        int
	mu           sync.Mutex
	closed       atomic.Bool // Track if collector is closed.
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a collector with the specified name and buffer size.
// bufferSize bounds the hand-off channel; SetLimit bounds the stored records.
func NewCollector(name string, bufferSize int) *Collector {
	if bufferSize < 1 {
		bufferSize = 1
	}
	c := &Collector{
		name:      name,
		records:   queue.New(),
		recordsCh: make(chan string, bufferSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.start()
	return c
}

// start runs the collector's main loop, receiving records from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining records before shutdown.
			for {
				select {
				case rec := <-c.recordsCh:
					c.buffer(rec)
				default:
					return
				}
			}
		case rec := <-c.recordsCh:
			c.buffer(rec)
		}
	}
}

// Close stops the collector goroutine after draining queued records.
// Records reported afterwards are dropped. Safe to call more than once.
func (c *Collector) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)
	select {
	case <-c.done:
	case <-time.After(100 * time.Millisecond):
	}
}

// Report implements Reporter. The record is copied. If the hand-off channel
// or the record limit is full, the record is dropped and counted.
func (c *Collector) Report(record []byte) error {
	rec := string(record)

	if c.closed.Load() {
		c.drop()
		return nil
	}
	if c.syncMode.Load() {
		c.buffer(rec)
		return nil
	}

	select {
	case c.recordsCh <- rec:
	default:
		// Channel full - drop record to prevent blocking.
		c.drop()
	}
	return nil
}

// Flush implements Reporter. Records are held in memory, so it does nothing.
func (*Collector) Flush() error { return nil }

func (c *Collector) buffer(rec string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit > 0 && c.records.Length() >= c.limit {
		c.dropLocked()
		return
	}
	c.records.Add(rec)
}

func (c *Collector) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
}

func (c *Collector) dropLocked() {
	c.droppedCount.Add(1)
	c.metrics.collectorDrop(c.name)
}

// Export returns all buffered records in arrival order and clears the buffer.
func (c *Collector) Export() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.records.Length()
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for c.records.Length() > 0 {
		out = append(out, c.records.Remove().(string))
	}
	return out
}

// Count returns the current number of buffered records.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records.Length()
}

// Name returns the collector's name, used as its metrics label.
func (c *Collector) Name() string { return c.name }

// DroppedCount returns the total number of records dropped.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection.
// When enabled, records are buffered directly without using the channel.
// This makes tests deterministic by eliminating async behavior.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// SetLimit bounds the number of buffered records. Zero means unbounded.
func (c *Collector) SetLimit(limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = limit
}

// SetMetrics counts drops in m under the collector's name.
func (c *Collector) SetMetrics(m *Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Reset clears all buffered records and resets the drop counter.
// Does not affect the running goroutine - use Close for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = queue.New()
	c.droppedCount.Store(0)
}
