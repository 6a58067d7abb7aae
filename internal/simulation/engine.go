package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"fleet-monitor/telemetry/internal/broadcast"
	"fleet-monitor/telemetry/internal/domain"
	"fleet-monitor/telemetry/internal/metrics"
	"fleet-monitor/telemetry/internal/telemetry"
	"fleet-monitor/telemetry/pkg/log"
)

const DefaultInterval = 5 * time.Second

// Publisher receives every snapshot the engine produces.
type Publisher interface {
	Publish(v domain.VehicleTelemetry) (broadcast.Report, error)
}

var errVehicleGone = errors.New("vehicle removed during tick")

// TickReport summarizes one tick.
type TickReport struct {
	Vehicles  int
	Published int
	Failed    int
}

type Engine struct {
	store    *telemetry.Store
	pub      Publisher
	clock    clock.WithTicker
	interval time.Duration
	log      log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Engine)

func WithClock(c clock.WithTicker) Option {
	return func(e *Engine) { e.clock = c }
}

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(store *telemetry.Store, pub Publisher, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		pub:      pub,
		clock:    clock.RealClock{},
		interval: DefaultInterval,
		log:      log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Interval() time.Duration {
	return e.interval
}

// Step runs one tick synchronously. Every vehicle is advanced and published
// on its own; a failure for one vehicle is logged and the tick moves on.
func (e *Engine) Step() TickReport {
	start := e.clock.Now()
	ids := e.store.IDs()

	rep := TickReport{Vehicles: len(ids)}
	for _, id := range ids {
		err := e.stepVehicle(id)
		switch {
		case err == nil:
			rep.Published++
		case errors.Is(err, errVehicleGone):
		default:
			rep.Failed++
			e.log.Error(err, "vehicle step failed", "id", id)
		}
	}

	metrics.Ticks.Inc()
	metrics.TickDuration.Observe(e.clock.Since(start).Seconds())
	return rep
}

func (e *Engine) stepVehicle(id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.VehicleStepFailures.Inc()
			err = fmt.Errorf("panic in vehicle step: %v", r)
		}
	}()

	v, ok := e.store.Update(id, func(v *domain.VehicleTelemetry) {
		Advance(v, e.clock.Now())
	})
	if !ok {
		return errVehicleGone
	}

	if _, err := e.pub.Publish(v); err != nil {
		metrics.SerializationFailures.Inc()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Run ticks every interval until ctx is done. A tick that has started always
// finishes before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info("simulation started", "interval", e.interval)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("simulation stopped")
			return nil
		case <-ticker.C():
			rep := e.Step()
			e.log.Debug("tick", "vehicles", rep.Vehicles, "published", rep.Published, "failed", rep.Failed)
		}
	}
}

// Start runs the loop in the background. Calling Start on a running engine
// does nothing.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel, e.done = cancel, done

	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
}

// Stop stops scheduling ticks and waits for the in-flight one.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
