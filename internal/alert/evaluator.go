package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"fleet-monitor/telemetry/internal/broadcast"
	"fleet-monitor/telemetry/internal/domain"
	"fleet-monitor/telemetry/internal/metrics"
	"fleet-monitor/telemetry/pkg/log"
)

const DefaultDedupTTL = 5 * time.Minute

// Recorder persists raised alerts.
type Recorder interface {
	InsertAlert(ctx context.Context, a domain.Alert) error
}

// Publisher fans raised alerts out to other services.
type Publisher interface {
	PublishAlert(ctx context.Context, payload []byte) error
}

type Options struct {
	Rules     []domain.AlertRule
	Dedup     Deduper
	Recorder  Recorder
	Publisher Publisher
	Clock     clock.PassiveClock
	Logger    log.Logger
}

// Evaluator checks every vehicle update against the battery rules. It is
// connected to the broadcaster like any observer, so a slow database never
// holds up the simulation.
type Evaluator struct {
	rules     []domain.AlertRule
	dedup     Deduper
	recorder  Recorder
	publisher Publisher
	clock     clock.PassiveClock
	log       log.Logger
}

func NewEvaluator(opts Options) *Evaluator {
	e := &Evaluator{
		rules:     opts.Rules,
		dedup:     opts.Dedup,
		recorder:  opts.Recorder,
		publisher: opts.Publisher,
		clock:     opts.Clock,
		log:       opts.Logger,
	}
	if e.rules == nil {
		e.rules = domain.DefaultAlertRules
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	if e.dedup == nil {
		e.dedup = NewMemoryDeduper(DefaultDedupTTL, e.clock)
	}
	if e.log == nil {
		e.log = log.NewNopLogger()
	}
	return e
}

var _ broadcast.Conn = (*Evaluator)(nil)

func (e *Evaluator) Send(ctx context.Context, msg broadcast.Message) error {
	_, err := e.Evaluate(ctx, msg.Snapshot)
	return err
}

// Evaluate returns the alerts raised for v after deduplication. Sink
// failures are joined into the error; the alerts are still returned.
func (e *Evaluator) Evaluate(ctx context.Context, v domain.VehicleTelemetry) ([]domain.Alert, error) {
	var (
		raised []domain.Alert
		errs   []error
	)

	for _, rule := range e.rules {
		if !rule.Evaluator(&v) {
			continue
		}

		isNew, err := e.dedup.Claim(ctx, v.ID, rule.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("dedup %s/%s: %w", v.ID, rule.Type, err))
			continue
		}
		if !isNew {
			continue
		}

		a := domain.Alert{
			VehicleID:   v.ID,
			Type:        rule.Type,
			Severity:    rule.Severity,
			Value:       v.BatteryLevel,
			TriggeredAt: e.clock.Now().UTC(),
		}
		raised = append(raised, a)
		metrics.Alerts.WithLabelValues(string(a.Type)).Inc()
		e.log.Warn("battery alert", "id", a.VehicleID, "type", a.Type, "severity", a.Severity, "battery", a.Value)

		if err := e.deliver(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}

	return raised, errors.Join(errs...)
}

func (e *Evaluator) deliver(ctx context.Context, a domain.Alert) error {
	var errs []error
	if e.recorder != nil {
		if err := e.recorder.InsertAlert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	if e.publisher != nil {
		payload, err := json.Marshal(a)
		if err != nil {
			return errors.Join(append(errs, fmt.Errorf("encode alert: %w", err))...)
		}
		if err := e.publisher.PublishAlert(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("publish alert for %s: %w", a.VehicleID, err))
		}
	}
	return errors.Join(errs...)
}
