package simulation

import (
	"math"
	"time"

	"fleet-monitor/telemetry/internal/domain"
)

const (
	tripBatteryDrain = 0.5
	tripRangeDrain   = 1.5
	chargeRate       = 0.7
	kmPerBatteryPct  = 3.0
	chargedThreshold = 99.0
	idleBatteryDrain = 0.05
)

// Advance applies one tick to v. Statuses other than on-trip and charging
// take the idle drain. Position and battery health are never touched.
func Advance(v *domain.VehicleTelemetry, now time.Time) {
	battery := v.BatteryLevel
	rng := float64(v.Range)

	switch v.Status {
	case domain.StatusOnTrip:
		battery = math.Max(domain.MinBattery, battery-tripBatteryDrain)
		rng = math.Max(domain.MinRange, rng-tripRangeDrain)
	case domain.StatusCharging:
		battery = math.Min(domain.MaxBattery, battery+chargeRate)
		rng = math.Min(domain.MaxRange, battery*kmPerBatteryPct)
		if battery >= chargedThreshold {
			v.Status = domain.StatusAvailable
		}
	default:
		battery = math.Max(domain.MinBattery, battery-idleBatteryDrain)
	}

	v.BatteryLevel = battery
	v.Range = int(rng)
	if now.After(v.LastUpdate) {
		v.LastUpdate = now
	}
}
