package telemetry

import (
	"errors"
	"fmt"

	"fleet-monitor/telemetry/internal/domain"
	"fleet-monitor/telemetry/internal/metrics"
	"fleet-monitor/telemetry/pkg/log"
)

var (
	ErrNotFound         = errors.New("vehicle not found")
	ErrInvalidID        = errors.New("invalid vehicle id")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidAttribute = errors.New("invalid attribute")
)

// Service is the contract the vehicle registry and the request layer use.
// Mutations validate their input; unknown ids are silent no-ops.
type Service struct {
	store *Store
	log   log.Logger
}

func NewService(store *Store, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Service{store: store, log: logger}
}

func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) AddOrInitVehicle(id string, attrs map[string]any) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	parsed, err := ParseAttributes(attrs)
	if err != nil {
		return fmt.Errorf("vehicle %s: %w", id, err)
	}

	v, created := s.store.Upsert(id, parsed)
	if created {
		metrics.Vehicles.Set(float64(s.store.Len()))
		s.log.Info("vehicle registered", "id", id, "status", string(v.Status), "battery", v.BatteryLevel, "range", v.Range)
	}
	return nil
}

func (s *Service) RemoveVehicle(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if s.store.Remove(id) {
		metrics.Vehicles.Set(float64(s.store.Len()))
		s.log.Info("vehicle removed", "id", id)
	}
	return nil
}

func (s *Service) UpdateStatus(id, status string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := ValidateStatus(status); err != nil {
		return err
	}
	if s.store.SetStatus(id, domain.Status(status)) {
		s.log.Debug("vehicle status changed", "id", id, "status", status)
	}
	return nil
}

func (s *Service) GetTelemetry(id string) (domain.VehicleTelemetry, error) {
	v, ok := s.store.Get(id)
	if !ok {
		return domain.VehicleTelemetry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v, nil
}

func (s *Service) GetAllTelemetry() []domain.VehicleTelemetry {
	return s.store.List()
}
