package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-monitor/telemetry/internal/config"
	"fleet-monitor/telemetry/internal/domain"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// VehicleRecord is one row of the vehicle registry. Every column but id is
// nullable; a NULL means the simulation picks a default.
type VehicleRecord struct {
	ID            string   `db:"id"`
	Status        *string  `db:"status"`
	BatteryLevel  *float64 `db:"battery_level"`
	RangeKm       *int32   `db:"range_km"`
	BatteryHealth *float64 `db:"battery_health"`
	Latitude      *float64 `db:"latitude"`
	Longitude     *float64 `db:"longitude"`
}

// Attributes converts the record into the base attribute map accepted by
// the ingest contract, leaving NULL columns out.
func (r VehicleRecord) Attributes() map[string]any {
	attrs := make(map[string]any, 6)
	if r.Status != nil {
		attrs["status"] = *r.Status
	}
	if r.BatteryLevel != nil {
		attrs["batteryLevel"] = *r.BatteryLevel
	}
	if r.RangeKm != nil {
		attrs["range"] = *r.RangeKm
	}
	if r.BatteryHealth != nil {
		attrs["batteryHealth"] = *r.BatteryHealth
	}
	if r.Latitude != nil {
		attrs["latitude"] = *r.Latitude
	}
	if r.Longitude != nil {
		attrs["longitude"] = *r.Longitude
	}
	return attrs
}

const loadVehiclesQuery = `
	SELECT id, status, battery_level, range_km, battery_health, latitude, longitude
	FROM vehicles
	ORDER BY id
`

func (s *PostgresStore) LoadVehicles(ctx context.Context) ([]VehicleRecord, error) {
	rows, err := s.pool.Query(ctx, loadVehiclesQuery)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[VehicleRecord])
	if err != nil {
		return nil, fmt.Errorf("scan vehicles: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a domain.Alert) error {
	query := `
		INSERT INTO vehicle_alerts
			(vehicle_id, alert_type, severity, triggered_value, created_at)
		VALUES
			($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		a.VehicleID,
		string(a.Type),
		string(a.Severity),
		a.Value,
		a.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert for %s: %w", a.VehicleID, err)
	}
	return nil
}
