package domain

import "time"

type Status string

const (
	StatusAvailable Status = "available"
	StatusOnTrip    Status = "on-trip"
	StatusCharging  Status = "charging"
)

const (
	MinBattery = 0.0
	MaxBattery = 100.0
	MinRange   = 0
	MaxRange   = 500

	// Vehicles without a known position are placed around this point.
	ReferenceLatitude  = 28.6139
	ReferenceLongitude = 77.2090
	PositionJitter     = 0.1
)

// VehicleTelemetry is the simulated state of one vehicle at a point in time.
// Values are copied out of the store, so holding one never races with the
// simulation.
type VehicleTelemetry struct {
	ID            string
	Status        Status
	BatteryLevel  float64
	Range         int
	BatteryHealth float64
	Latitude      float64
	Longitude     float64
	LastUpdate    time.Time
}

const MessageTypeVehicleUpdate = "vehicle_update"

// VehicleUpdate is the wire envelope pushed to observers for every tick.
type VehicleUpdate struct {
	Type          string  `json:"type"`
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	BatteryLevel  float64 `json:"batteryLevel"`
	Range         int     `json:"range"`
	BatteryHealth float64 `json:"batteryHealth"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	LastUpdate    string  `json:"lastUpdate"`
}

func NewVehicleUpdate(v VehicleTelemetry) VehicleUpdate {
	return VehicleUpdate{
		Type:          MessageTypeVehicleUpdate,
		ID:            v.ID,
		Status:        string(v.Status),
		BatteryLevel:  v.BatteryLevel,
		Range:         v.Range,
		BatteryHealth: v.BatteryHealth,
		Latitude:      v.Latitude,
		Longitude:     v.Longitude,
		LastUpdate:    v.LastUpdate.UTC().Format(time.RFC3339Nano),
	}
}

// TelemetryView is the JSON shape returned by the query API. It matches the
// observer envelope minus the type tag.
type TelemetryView struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	BatteryLevel  float64    `json:"batteryLevel"`
	Range         int        `json:"range"`
	BatteryHealth float64    `json:"batteryHealth"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	LastUpdate    *time.Time `json:"lastUpdate,omitempty"`
}

func NewTelemetryView(v VehicleTelemetry) TelemetryView {
	view := TelemetryView{
		ID:            v.ID,
		Status:        string(v.Status),
		BatteryLevel:  v.BatteryLevel,
		Range:         v.Range,
		BatteryHealth: v.BatteryHealth,
		Latitude:      v.Latitude,
		Longitude:     v.Longitude,
	}
	if !v.LastUpdate.IsZero() {
		ts := v.LastUpdate.UTC()
		view.LastUpdate = &ts
	}
	return view
}

type AlertType string

const (
	AlertLowBattery      AlertType = "LOW_BATTERY"
	AlertCriticalBattery AlertType = "CRITICAL_BATTERY"
)

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

type AlertRule struct {
	Type      AlertType
	Severity  AlertSeverity
	Evaluator func(v *VehicleTelemetry) bool
}

// DefaultAlertRules mirror the dashboard's battery warning: below 30% and
// not plugged in means the driver should charge.
var DefaultAlertRules = []AlertRule{
	{
		Type:     AlertCriticalBattery,
		Severity: SeverityCritical,
		Evaluator: func(v *VehicleTelemetry) bool {
			return v.Status != StatusCharging && v.BatteryLevel < 10.0
		},
	},
	{
		Type:     AlertLowBattery,
		Severity: SeverityWarning,
		Evaluator: func(v *VehicleTelemetry) bool {
			return v.Status != StatusCharging && v.BatteryLevel < 30.0
		},
	},
}

type Alert struct {
	VehicleID   string        `json:"vehicle_id"`
	Type        AlertType     `json:"alert_type"`
	Severity    AlertSeverity `json:"severity"`
	Value       float64       `json:"value"`
	TriggeredAt time.Time     `json:"triggered_at"`
}
