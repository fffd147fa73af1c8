package ctrace

import (
	"sync"
)

// IDPool keeps a buffer of pre-generated identifiers to amortize crypto/rand
// overhead on the span creation path. It implements IDGenerator.
type IDPool struct {
	gen    IDGenerator
	ids    chan string
	stopCh chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewIDPool creates a pool holding up to capacity identifiers from gen.
// A background goroutine keeps the pool full until Close is called.
func NewIDPool(capacity int, gen IDGenerator) *IDPool {
	if capacity < 1 {
		capacity = 1
	}
	pool := &IDPool{
		gen:    gen,
		ids:    make(chan string, capacity),
		stopCh: make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// NewID takes an identifier from the pool, or generates one directly when
// the pool is drained.
func (p *IDPool) NewID() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.gen.NewID()
	}
}

func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		id := p.gen.NewID()
		select {
		case p.ids <- id:
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine. NewID keeps working after Close by
// generating identifiers directly. Safe to call more than once.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}
