package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"fleet-monitor/telemetry/internal/domain"
)

const maxIDLength = 128

// Attributes are the base values a registry supplies when a vehicle first
// appears. Nil fields get randomized defaults.
type Attributes struct {
	Status        *domain.Status
	BatteryLevel  *float64
	Range         *int
	BatteryHealth *float64
	Latitude      *float64
	Longitude     *float64
}

// ParseAttributes reads the telemetry-relevant keys out of a registry record.
// Keys the core does not simulate (make, model, licensePlate, ...) are
// ignored. A present key with a value of the wrong type or out of bounds is
// an ErrInvalidAttribute.
func ParseAttributes(raw map[string]any) (Attributes, error) {
	var a Attributes

	if val, ok := present(raw, "status"); ok {
		s, isString := val.(string)
		if !isString || strings.TrimSpace(s) == "" {
			return Attributes{}, fmt.Errorf("%w: status must be a non-empty string", ErrInvalidAttribute)
		}
		status := domain.Status(s)
		a.Status = &status
	}

	var err error
	if a.BatteryLevel, err = boundedFloat(raw, "batteryLevel", domain.MinBattery, domain.MaxBattery); err != nil {
		return Attributes{}, err
	}
	if a.BatteryHealth, err = boundedFloat(raw, "batteryHealth", 0, 100); err != nil {
		return Attributes{}, err
	}
	if a.Latitude, err = boundedFloat(raw, "latitude", -90, 90); err != nil {
		return Attributes{}, err
	}
	if a.Longitude, err = boundedFloat(raw, "longitude", -180, 180); err != nil {
		return Attributes{}, err
	}

	rng, err := boundedFloat(raw, "range", domain.MinRange, domain.MaxRange)
	if err != nil {
		return Attributes{}, err
	}
	if rng != nil {
		r := int(*rng)
		a.Range = &r
	}

	return a, nil
}

// ValidateID rejects ids that cannot be used as map keys on the wire or in
// redis key names.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, maxIDLength)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidID, id)
		}
	}
	return nil
}

func ValidateStatus(status string) error {
	if strings.TrimSpace(status) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidStatus)
	}
	return nil
}

func present(raw map[string]any, key string) (any, bool) {
	val, ok := raw[key]
	if !ok || val == nil {
		return nil, false
	}
	return val, true
}

func boundedFloat(raw map[string]any, key string, lo, hi float64) (*float64, error) {
	val, ok := present(raw, key)
	if !ok {
		return nil, nil
	}
	f, err := toFloat(val)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAttribute, key, err)
	}
	if f < lo || f > hi {
		return nil, fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrInvalidAttribute, key, f, lo, hi)
	}
	return &f, nil
}

func toFloat(val any) (float64, error) {
	var f float64
	switch v := val.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", val)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}
