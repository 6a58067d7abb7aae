package ingest

import (
	"context"

	"fleet-monitor/telemetry/internal/metrics"
	"fleet-monitor/telemetry/pkg/log"
)

// Source delivers raw registry event payloads. The channel closes when ctx
// is done or the source goes away.
type Source interface {
	RegistryEvents(ctx context.Context) (<-chan []byte, error)
}

// Subscriber applies registry events from a Source as they arrive. A bad
// event is logged and skipped; it never stops the stream.
type Subscriber struct {
	source Source
	reg    Registry
	log    log.Logger
}

func NewSubscriber(source Source, reg Registry, logger log.Logger) *Subscriber {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Subscriber{source: source, reg: reg, log: logger.WithName("ingest")}
}

func (s *Subscriber) Run(ctx context.Context) error {
	events, err := s.source.RegistryEvents(ctx)
	if err != nil {
		return err
	}

	s.log.Info("listening for registry events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Warn("registry event stream closed")
				return nil
			}
			s.Handle(payload)
		}
	}
}

// Handle decodes and applies one payload.
func (s *Subscriber) Handle(payload []byte) {
	ev, err := DecodeEvent(payload)
	if err != nil {
		s.log.Warn("skipping malformed registry event", "error", err, "payload", string(payload))
		return
	}
	if err := Apply(s.reg, ev); err != nil {
		s.log.Warn("registry event rejected", "op", string(ev.Op), "id", ev.ID, "error", err)
		return
	}
	metrics.IngestEvents.WithLabelValues("redis", string(ev.Op)).Inc()
}
