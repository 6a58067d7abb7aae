package broadcast

import (
	"sync"
	"sync/atomic"
)

// Registry is the set of open connections. It is backed by a sync.Map so a
// broadcast iterating it never blocks Add or Remove, and a connection removed
// mid-iteration is either visited or skipped, never half-seen.
type Registry struct {
	peers sync.Map // Conn -> *Peer
	count atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers p under its connection. It returns false if the connection
// is already registered.
func (r *Registry) Add(p *Peer) bool {
	if _, loaded := r.peers.LoadOrStore(p.conn, p); loaded {
		return false
	}
	r.count.Add(1)
	return true
}

func (r *Registry) Remove(c Conn) (*Peer, bool) {
	raw, ok := r.peers.LoadAndDelete(c)
	if !ok {
		return nil, false
	}
	r.count.Add(-1)
	return raw.(*Peer), true
}

// Range calls fn for every registered peer until fn returns false.
func (r *Registry) Range(fn func(p *Peer) bool) {
	r.peers.Range(func(_, raw any) bool {
		return fn(raw.(*Peer))
	})
}

func (r *Registry) Len() int {
	return int(r.count.Load())
}
