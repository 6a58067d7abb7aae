package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"fleet-monitor/telemetry/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}
	cfg := config.Load()

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1_vehicles_table(ctx, conn)
	step2_alerts_table(ctx, conn)
	step3_indexes(ctx, conn)
	step4_seed_vehicles(ctx, conn)
	step5_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./scripts/seed_redis")
}

// ─────────────────────────────────────────────────────────────
// Step 1: vehicles table
// ─────────────────────────────────────────────────────────────
func step1_vehicles_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: vehicles table ──────────────────────")

	// Registry columns telemetryd reads at startup. NULL means
	// "let the simulation pick a default".
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicles (
			id               TEXT             PRIMARY KEY,
			make             TEXT,
			model            TEXT,
			license_plate    TEXT,
			status           TEXT,
			battery_level    DOUBLE PRECISION CHECK (battery_level BETWEEN 0 AND 100),
			range_km         INTEGER          CHECK (range_km BETWEEN 0 AND 500),
			battery_health   DOUBLE PRECISION CHECK (battery_health BETWEEN 0 AND 100),
			latitude         DOUBLE PRECISION,
			longitude        DOUBLE PRECISION,
			created_at       TIMESTAMPTZ      NOT NULL DEFAULT NOW()
		);
	`, "vehicles table created")
}

// ─────────────────────────────────────────────────────────────
// Step 2: vehicle_alerts table
// ─────────────────────────────────────────────────────────────
func step2_alerts_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: vehicle_alerts table ────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicle_alerts (
			id               BIGSERIAL        PRIMARY KEY,
			vehicle_id       TEXT             NOT NULL,

			-- Must exactly match domain.AlertType constants
			alert_type       TEXT             NOT NULL,

			-- Must exactly match domain.AlertSeverity constants
			severity         TEXT             NOT NULL,

			-- Battery level when the alert fired
			triggered_value  DOUBLE PRECISION,

			created_at       TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			acknowledged_at  TIMESTAMPTZ,
			acknowledged_by  TEXT,

			CONSTRAINT chk_alert_type CHECK (
				alert_type IN ('LOW_BATTERY', 'CRITICAL_BATTERY')
			),
			CONSTRAINT chk_severity CHECK (
				severity IN ('WARNING', 'CRITICAL')
			)
		);
	`, "vehicle_alerts table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3: Indexes
// ─────────────────────────────────────────────────────────────
func step3_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_alerts_vehicle",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_vehicle
				  ON vehicle_alerts (vehicle_id, created_at DESC);`,
			why: "query: alerts for one vehicle",
		},
		{
			name: "idx_alerts_unacknowledged",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_unacknowledged
				  ON vehicle_alerts (created_at DESC)
				  WHERE acknowledged_at IS NULL;`,
			why: "query: open alerts only (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 4: Sample vehicles
// ─────────────────────────────────────────────────────────────
func step4_seed_vehicles(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: Sample vehicles ─────────────────────")

	type row struct {
		id, make, model, plate, status string
		battery                        *float64
		rangeKm                        *int
	}
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }

	rows := []row{
		{"EV-DL-001", "Tata", "Nexon EV", "DL01EV0001", "available", f(86), i(258)},
		{"EV-DL-002", "MG", "ZS EV", "DL01EV0002", "on-trip", f(54.5), i(163)},
		{"EV-DL-003", "Hyundai", "Kona", "DL01EV0003", "charging", f(22), i(66)},
		{"EV-DL-004", "Tata", "Tigor EV", "DL01EV0004", "on-trip", f(9), i(27)},
		// Everything else is randomized by telemetryd.
		{"EV-DL-005", "Mahindra", "XUV400", "DL01EV0005", "available", nil, nil},
	}

	for _, r := range rows {
		_, err := conn.Exec(ctx, `
			INSERT INTO vehicles (id, make, model, license_plate, status, battery_level, range_km)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, r.id, r.make, r.model, r.plate, r.status, r.battery, r.rangeKm)
		if err != nil {
			log.Fatalf("FAILED — insert %s\nError: %v", r.id, err)
		}
		fmt.Printf("  ✓ %-12s %s %s (%s)\n", r.id, r.make, r.model, r.status)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 5: Verify everything was created
// ─────────────────────────────────────────────────────────────
func step5_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Verification ────────────────────────")

	tables := []string{"vehicles", "vehicle_alerts"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var vehicleCount int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&vehicleCount); err != nil {
		log.Fatalf("Vehicle count failed: %v", err)
	}
	fmt.Printf("  ✓ vehicles registered: %d\n", vehicleCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}
