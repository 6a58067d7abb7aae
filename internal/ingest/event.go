package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type Op string

const (
	OpUpsert Op = "upsert"
	OpRemove Op = "remove"
	OpStatus Op = "status"
)

var ErrUnknownOp = errors.New("unknown registry event op")

// Event is one change published by the vehicle registry.
type Event struct {
	Op     Op             `json:"op"`
	ID     string         `json:"id"`
	Attrs  map[string]any `json:"attrs,omitempty"`
	Status string         `json:"status,omitempty"`
}

// DecodeEvent parses a registry event. Numbers are kept as json.Number so
// attribute parsing sees the registry's exact values.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("decode registry event: %w", err)
	}
	return ev, nil
}

// Registry is the ingest contract events are applied to.
type Registry interface {
	AddOrInitVehicle(id string, attrs map[string]any) error
	RemoveVehicle(id string) error
	UpdateStatus(id, status string) error
}

func Apply(reg Registry, ev Event) error {
	switch ev.Op {
	case OpUpsert:
		return reg.AddOrInitVehicle(ev.ID, ev.Attrs)
	case OpRemove:
		return reg.RemoveVehicle(ev.ID)
	case OpStatus:
		return reg.UpdateStatus(ev.ID, ev.Status)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, ev.Op)
	}
}
