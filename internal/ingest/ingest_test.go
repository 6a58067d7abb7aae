package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleet-monitor/telemetry/internal/domain"
	"fleet-monitor/telemetry/internal/store"
	"fleet-monitor/telemetry/internal/telemetry"
)

func newService() *telemetry.Service {
	return telemetry.NewService(telemetry.NewStore(telemetry.WithSeed(5)), nil)
}

func TestApply(t *testing.T) {
	svc := newService()

	steps := []string{
		`{"op":"upsert","id":"EV-1","attrs":{"status":"on-trip","batteryLevel":64.5,"range":190,"model":"Nexon"}}`,
		`{"op":"status","id":"EV-1","status":"charging"}`,
	}
	for _, raw := range steps {
		ev, err := DecodeEvent([]byte(raw))
		if err != nil {
			t.Fatal(err)
		}
		if err := Apply(svc, ev); err != nil {
			t.Fatalf("apply %s: %v", raw, err)
		}
	}

	v, err := svc.GetTelemetry("EV-1")
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != domain.StatusCharging || v.BatteryLevel != 64.5 || v.Range != 190 {
		t.Fatalf("vehicle = %+v", v)
	}

	ev, _ := DecodeEvent([]byte(`{"op":"remove","id":"EV-1"}`))
	if err := Apply(svc, ev); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetTelemetry("EV-1"); !errors.Is(err, telemetry.ErrNotFound) {
		t.Fatalf("after remove: %v", err)
	}
}

func TestApplyUnknownOp(t *testing.T) {
	err := Apply(newService(), Event{Op: "rename", ID: "EV-1"})
	if !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("err = %v", err)
	}
}

type chanSource struct {
	ch chan []byte
}

func (s *chanSource) RegistryEvents(context.Context) (<-chan []byte, error) {
	return s.ch, nil
}

func TestSubscriberSkipsBadEvents(t *testing.T) {
	svc := newService()
	src := &chanSource{ch: make(chan []byte)}
	sub := NewSubscriber(src, svc, nil)

	done := make(chan error, 1)
	go func() { done <- sub.Run(context.Background()) }()

	src.ch <- []byte(`not json`)
	src.ch <- []byte(`{"op":"upsert","id":"EV-2","attrs":{"batteryLevel":500}}`)
	src.ch <- []byte(`{"op":"upsert","id":"EV-3","attrs":{"batteryLevel":40}}`)
	close(src.ch)

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the source closed")
	}

	if _, err := svc.GetTelemetry("EV-2"); err == nil {
		t.Error("invalid event was applied")
	}
	if v, err := svc.GetTelemetry("EV-3"); err != nil || v.BatteryLevel != 40 {
		t.Errorf("EV-3 = %+v, %v", v, err)
	}
}

func TestSubscriberStopsOnContext(t *testing.T) {
	src := &chanSource{ch: make(chan []byte)}
	sub := NewSubscriber(src, newService(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

type fakeLoader struct {
	records []store.VehicleRecord
	err     error
}

func (f fakeLoader) LoadVehicles(context.Context) ([]store.VehicleRecord, error) {
	return f.records, f.err
}

func TestSeed(t *testing.T) {
	svc := newService()
	level := 72.0
	bad := 130.0
	status := "on-trip"

	n, err := Seed(context.Background(), fakeLoader{records: []store.VehicleRecord{
		{ID: "EV-1", Status: &status, BatteryLevel: &level},
		{ID: "EV-2", BatteryLevel: &bad},
		{ID: "EV-3"},
	}}, svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("accepted = %d, want 2", n)
	}
	if v, _ := svc.GetTelemetry("EV-1"); v.BatteryLevel != 72 || v.Status != domain.StatusOnTrip {
		t.Errorf("EV-1 = %+v", v)
	}
	if _, err := svc.GetTelemetry("EV-3"); err != nil {
		t.Errorf("EV-3 missing: %v", err)
	}
}

func TestSeedLoadError(t *testing.T) {
	if _, err := Seed(context.Background(), fakeLoader{err: errors.New("db down")}, newService(), nil); err == nil {
		t.Fatal("expected error")
	}
}
