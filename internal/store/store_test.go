package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fleet-monitor/telemetry/internal/domain"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{StateKey("EV-1"), "vehicle:EV-1:state"},
		{AuthKey("abc"), "fleet:auth:abc"},
		{AlertDedupKey("EV-1", domain.AlertLowBattery), "alert:EV-1:LOW_BATTERY"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestStateFields(t *testing.T) {
	v := domain.VehicleTelemetry{
		ID:            "EV-1",
		Status:        domain.StatusOnTrip,
		BatteryLevel:  55.5,
		Range:         160,
		BatteryHealth: 90,
		Latitude:      28.6,
		Longitude:     77.2,
		LastUpdate:    time.UnixMilli(1700000000123),
	}

	want := map[string]any{
		"id":             "EV-1",
		"status":         "on-trip",
		"battery_level":  55.5,
		"range_km":       160,
		"battery_health": 90.0,
		"lat":            28.6,
		"lng":            77.2,
		"last_update":    int64(1700000000123),
	}
	if diff := cmp.Diff(want, StateFields(v)); diff != "" {
		t.Errorf("state fields (-want +got):\n%s", diff)
	}
}

func TestVehicleRecordAttributes(t *testing.T) {
	status := "charging"
	level := 42.0
	rng := int32(126)

	got := VehicleRecord{ID: "EV-2", Status: &status, BatteryLevel: &level, RangeKm: &rng}.Attributes()
	want := map[string]any{
		"status":       "charging",
		"batteryLevel": 42.0,
		"range":        int32(126),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("attributes (-want +got):\n%s", diff)
	}

	if got := (VehicleRecord{ID: "EV-3"}).Attributes(); len(got) != 0 {
		t.Errorf("all-null record produced %v", got)
	}
}
