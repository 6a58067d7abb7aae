package simulation

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"fleet-monitor/telemetry/internal/domain"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAdvance(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		in          domain.VehicleTelemetry
		wantBattery float64
		wantRange   int
		wantStatus  domain.Status
	}{
		{
			name:        "on-trip drains and floors range",
			in:          domain.VehicleTelemetry{Status: domain.StatusOnTrip, BatteryLevel: 10, Range: 2},
			wantBattery: 9.5,
			wantRange:   0,
			wantStatus:  domain.StatusOnTrip,
		},
		{
			name:        "charging to full flips to available",
			in:          domain.VehicleTelemetry{Status: domain.StatusCharging, BatteryLevel: 99.5, Range: 120},
			wantBattery: 100,
			wantRange:   300,
			wantStatus:  domain.StatusAvailable,
		},
		{
			name:        "charging below threshold stays charging",
			in:          domain.VehicleTelemetry{Status: domain.StatusCharging, BatteryLevel: 50, Range: 10},
			wantBattery: 50.7,
			wantRange:   152,
			wantStatus:  domain.StatusCharging,
		},
		{
			name:        "available idles",
			in:          domain.VehicleTelemetry{Status: domain.StatusAvailable, BatteryLevel: 1, Range: 40},
			wantBattery: 0.95,
			wantRange:   40,
			wantStatus:  domain.StatusAvailable,
		},
		{
			name:        "unknown status idles",
			in:          domain.VehicleTelemetry{Status: "maintenance", BatteryLevel: 0.01, Range: 3},
			wantBattery: 0,
			wantRange:   3,
			wantStatus:  "maintenance",
		},
		{
			name:        "on-trip never negative",
			in:          domain.VehicleTelemetry{Status: domain.StatusOnTrip, BatteryLevel: 0.2, Range: 1},
			wantBattery: 0,
			wantRange:   0,
			wantStatus:  domain.StatusOnTrip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.in
			Advance(&v, now)
			if !approx(v.BatteryLevel, tt.wantBattery) {
				t.Errorf("battery = %v, want %v", v.BatteryLevel, tt.wantBattery)
			}
			if v.Range != tt.wantRange {
				t.Errorf("range = %d, want %d", v.Range, tt.wantRange)
			}
			if v.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", v.Status, tt.wantStatus)
			}
			if !v.LastUpdate.Equal(now) {
				t.Errorf("lastUpdate = %v, want %v", v.LastUpdate, now)
			}
		})
	}
}

func TestAdvanceLastUpdateNeverGoesBack(t *testing.T) {
	later := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	v := domain.VehicleTelemetry{Status: domain.StatusAvailable, BatteryLevel: 50, LastUpdate: later}

	Advance(&v, later.Add(-time.Minute))
	if !v.LastUpdate.Equal(later) {
		t.Fatalf("lastUpdate moved backwards to %v", v.LastUpdate)
	}
}

func TestChargingFlipsOnlyWhenCrossing99(t *testing.T) {
	v := domain.VehicleTelemetry{Status: domain.StatusCharging, BatteryLevel: 97.0}
	now := time.Unix(0, 0)

	for i := 0; i < 10 && v.Status == domain.StatusCharging; i++ {
		before := v.BatteryLevel
		Advance(&v, now)
		if v.BatteryLevel >= 99 && v.Status != domain.StatusAvailable {
			t.Fatalf("battery %v reached threshold but status is %s", v.BatteryLevel, v.Status)
		}
		if v.BatteryLevel < 99 && v.Status != domain.StatusCharging {
			t.Fatalf("status flipped early at %v (from %v)", v.BatteryLevel, before)
		}
	}
	if v.Status != domain.StatusAvailable {
		t.Fatal("never became available")
	}
}

func TestAdvanceKeepsBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	statuses := []domain.Status{domain.StatusAvailable, domain.StatusOnTrip, domain.StatusCharging, "parked"}
	now := time.Unix(0, 0)

	for trial := 0; trial < 200; trial++ {
		v := domain.VehicleTelemetry{
			Status:       statuses[r.IntN(len(statuses))],
			BatteryLevel: r.Float64() * 100,
			Range:        r.IntN(501),
		}
		for tick := 0; tick < 300; tick++ {
			if r.IntN(20) == 0 {
				v.Status = statuses[r.IntN(len(statuses))]
			}
			Advance(&v, now)
			if v.BatteryLevel < 0 || v.BatteryLevel > 100 {
				t.Fatalf("battery out of bounds: %v", v.BatteryLevel)
			}
			if v.Range < 0 || v.Range > 500 {
				t.Fatalf("range out of bounds: %v", v.Range)
			}
		}
	}
}

func TestAdvanceLeavesStaticFields(t *testing.T) {
	v := domain.VehicleTelemetry{
		Status:        domain.StatusOnTrip,
		BatteryLevel:  60,
		Range:         100,
		BatteryHealth: 91,
		Latitude:      28.65,
		Longitude:     77.25,
	}
	Advance(&v, time.Unix(0, 0))
	if v.BatteryHealth != 91 || v.Latitude != 28.65 || v.Longitude != 77.25 {
		t.Fatalf("static fields changed: %+v", v)
	}
}
