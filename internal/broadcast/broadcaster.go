package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"fleet-monitor/telemetry/internal/domain"
	"fleet-monitor/telemetry/internal/metrics"
	"fleet-monitor/telemetry/pkg/log"
)

// PrunePolicy decides when a failing connection is dropped without waiting
// for the transport's close notification. MaxFailures counts consecutive
// failed sends; zero keeps failed connections registered until they are
// explicitly disconnected.
type PrunePolicy struct {
	MaxFailures int64
}

// Result is the outcome of one send to one connection.
type Result struct {
	Conn    Conn
	Message Message
	Err     error
}

type Options struct {
	Prune PrunePolicy

	// OnResult, if set, sees every send outcome. It runs on the
	// connection's writer goroutine and must not block.
	OnResult func(Result)

	Logger log.Logger
}

// Report summarizes one Publish. Superseded counts connections that still
// had an unwritten update for the same vehicle; that older update is replaced
// by this one and never written.
type Report struct {
	Targets    int
	Queued     int
	Superseded int
}

type Broadcaster struct {
	registry *Registry
	opts     Options
	log      log.Logger
	marshal  func(v any) ([]byte, error)

	wg sync.WaitGroup
}

func New(opts Options) *Broadcaster {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Broadcaster{
		registry: NewRegistry(),
		opts:     opts,
		log:      logger,
		marshal:  json.Marshal,
	}
}

func (b *Broadcaster) Registry() *Registry {
	return b.registry
}

// Connect registers c and starts its writer. It returns false if c is
// already connected.
func (b *Broadcaster) Connect(c Conn) bool {
	p := newPeer(c)
	if !b.registry.Add(p) {
		p.close()
		return false
	}
	metrics.Connections.Set(float64(b.registry.Len()))

	b.wg.Add(1)
	go b.writeLoop(p)
	return true
}

// Disconnect deregisters c. Messages still queued for it are discarded, and
// the context of a send already in progress is cancelled.
func (b *Broadcaster) Disconnect(c Conn) bool {
	p, ok := b.registry.Remove(c)
	if !ok {
		return false
	}
	p.close()
	metrics.Connections.Set(float64(b.registry.Len()))
	b.log.Debug("connection removed", "sent", p.Sent(), "failures", p.Failures(), "discarded", p.Pending())
	return true
}

// Publish encodes v once and queues the identical payload for every
// registered connection. Delivery happens on the connections' own writers,
// so Publish never waits on a socket. The only error is a failure to encode.
func (b *Broadcaster) Publish(v domain.VehicleTelemetry) (Report, error) {
	payload, err := b.marshal(domain.NewVehicleUpdate(v))
	if err != nil {
		return Report{}, fmt.Errorf("encode update for vehicle %s: %w", v.ID, err)
	}
	msg := Message{
		Type:     domain.MessageTypeVehicleUpdate,
		Payload:  payload,
		Snapshot: v,
	}

	var rep Report
	b.registry.Range(func(p *Peer) bool {
		rep.Targets++
		switch p.enqueue(msg) {
		case enqueued:
			rep.Queued++
		case superseded:
			rep.Queued++
			rep.Superseded++
			metrics.Superseded.Inc()
		}
		return true
	})
	return rep, nil
}

// Close disconnects everything and waits for the writers to exit.
func (b *Broadcaster) Close() {
	b.registry.Range(func(p *Peer) bool {
		b.Disconnect(p.conn)
		return true
	})
	b.wg.Wait()
}

func (b *Broadcaster) writeLoop(p *Peer) {
	defer b.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.notify:
		}
		for _, msg := range p.drain() {
			if p.ctx.Err() != nil {
				return
			}
			err := p.conn.Send(p.ctx, msg)
			b.observe(p, Result{Conn: p.conn, Message: msg, Err: err})
		}
	}
}

func (b *Broadcaster) observe(p *Peer, res Result) {
	if res.Err == nil {
		p.failures.Store(0)
		p.sent.Add(1)
		metrics.Sends.WithLabelValues("ok").Inc()
	} else {
		failures := p.failures.Add(1)
		metrics.Sends.WithLabelValues("error").Inc()
		b.log.Debug("send failed", "vehicle", res.Message.Snapshot.ID, "failures", failures, "error", res.Err)

		if limit := b.opts.Prune.MaxFailures; limit > 0 && failures >= limit {
			if b.Disconnect(p.conn) {
				metrics.Pruned.Inc()
				b.log.Info("connection pruned after repeated send failures", "failures", failures)
			}
		}
	}

	if b.opts.OnResult != nil {
		b.opts.OnResult(res)
	}
}
