package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/eclipse/paho.golang/paho"

	"fleet-monitor/telemetry/internal/broadcast"
	"fleet-monitor/telemetry/internal/domain"
)

type fakePublisher struct {
	got    []*paho.Publish
	reason byte
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("publish without deadline")
	}
	f.got = append(f.got, p)
	if f.err != nil {
		return nil, f.err
	}
	return &paho.PublishResponse{ReasonCode: f.reason}, nil
}

func message(id string) broadcast.Message {
	return broadcast.Message{
		Type:     domain.MessageTypeVehicleUpdate,
		Payload:  []byte(`{"type":"vehicle_update","id":"` + id + `"}`),
		Snapshot: domain.VehicleTelemetry{ID: id},
	}
}

func TestSendPublishesPerVehicleTopic(t *testing.T) {
	fp := &fakePublisher{}
	n := newMQTTNotifier(fp, "fleet/v1")

	if err := n.Send(context.Background(), message("EV-4")); err != nil {
		t.Fatal(err)
	}
	if len(fp.got) != 1 {
		t.Fatalf("published %d", len(fp.got))
	}
	p := fp.got[0]
	if p.Topic != "fleet/v1/vehicles/EV-4/telemetry" {
		t.Errorf("topic = %q", p.Topic)
	}
	if string(p.Payload) != `{"type":"vehicle_update","id":"EV-4"}` {
		t.Errorf("payload = %s", p.Payload)
	}
}

func TestSendReasonCodes(t *testing.T) {
	tests := []struct {
		name    string
		reason  byte
		err     error
		wantErr bool
	}{
		{"success", 0, nil, false},
		{"no subscribers", reasonNoSubscribers, nil, false},
		{"not authorized", 135, nil, true},
		{"transport error", 0, errors.New("connection down"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newMQTTNotifier(&fakePublisher{reason: tt.reason, err: tt.err}, "fleet/v1")
			err := n.Send(context.Background(), message("EV-1"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	n := newMQTTNotifier(&fakePublisher{}, "fleet/v1")
	if err := n.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
