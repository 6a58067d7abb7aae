package ingest

import (
	"context"
	"fmt"

	"fleet-monitor/telemetry/internal/metrics"
	"fleet-monitor/telemetry/internal/store"
	"fleet-monitor/telemetry/pkg/log"
)

// VehicleLoader reads the persisted vehicle registry.
type VehicleLoader interface {
	LoadVehicles(ctx context.Context) ([]store.VehicleRecord, error)
}

// Seed registers every persisted vehicle. Rows that fail validation are
// logged and skipped. It returns how many vehicles were accepted.
func Seed(ctx context.Context, loader VehicleLoader, reg Registry, logger log.Logger) (int, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	records, err := loader.LoadVehicles(ctx)
	if err != nil {
		return 0, fmt.Errorf("load vehicle registry: %w", err)
	}

	accepted := 0
	for _, rec := range records {
		if err := reg.AddOrInitVehicle(rec.ID, rec.Attributes()); err != nil {
			logger.Warn("skipping vehicle from registry", "id", rec.ID, "error", err)
			continue
		}
		accepted++
		metrics.IngestEvents.WithLabelValues("postgres", string(OpUpsert)).Inc()
	}
	logger.Info("vehicle registry loaded", "rows", len(records), "accepted", accepted)
	return accepted, nil
}
