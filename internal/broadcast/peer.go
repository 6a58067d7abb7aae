package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"fleet-monitor/telemetry/internal/domain"
)

// Message is one encoded update plus the snapshot it was built from, so
// mirrors that key by vehicle do not have to decode the payload again.
type Message struct {
	Type     string
	Payload  []byte
	Snapshot domain.VehicleTelemetry
}

// Conn is one observer. Send blocks until the message is written or fails.
// Implementations must be comparable (use pointer receivers): the registry
// keys connections by identity.
type Conn interface {
	Send(ctx context.Context, msg Message) error
}

type enqueueResult int

const (
	enqueued enqueueResult = iota
	superseded
	peerClosed
)

// Peer is a registered connection with its own outbound queue. A single
// writer goroutine drains the queue, so per-connection order is kept and a
// slow connection only ever backs up itself.
//
// The queue holds at most one pending message per vehicle. Publishing a
// vehicle that is still waiting to be written replaces the pending message
// in place, so a connection that keeps up sees every update and one that
// falls behind skips straight to the newest snapshot of each vehicle.
type Peer struct {
	conn   Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []Message
	index   map[string]int
	notify  chan struct{}

	closeOnce sync.Once
	failures  atomic.Int64
	sent      atomic.Int64
}

func newPeer(c Conn) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Peer{
		conn:   c,
		ctx:    ctx,
		cancel: cancel,
		index:  make(map[string]int),
		notify: make(chan struct{}, 1),
	}
}

func (p *Peer) Conn() Conn {
	return p.conn
}

// Failures is the number of consecutive failed sends.
func (p *Peer) Failures() int64 {
	return p.failures.Load()
}

// Sent is the number of successful sends since the peer connected.
func (p *Peer) Sent() int64 {
	return p.sent.Load()
}

// Pending is the number of messages waiting for the writer.
func (p *Peer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Peer) enqueue(msg Message) enqueueResult {
	if p.ctx.Err() != nil {
		return peerClosed
	}

	res := enqueued
	p.mu.Lock()
	if i, ok := p.index[msg.Snapshot.ID]; ok {
		p.pending[i] = msg
		res = superseded
	} else {
		p.index[msg.Snapshot.ID] = len(p.pending)
		p.pending = append(p.pending, msg)
	}
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return res
}

// drain hands everything pending to the writer and empties the queue.
func (p *Peer) drain() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	batch := p.pending
	p.pending = nil
	clear(p.index)
	return batch
}

func (p *Peer) close() {
	p.closeOnce.Do(p.cancel)
}
