package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"fleet-monitor/telemetry/internal/config"
	"fleet-monitor/telemetry/internal/ingest"
	"fleet-monitor/telemetry/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file — using system environment variables")
	}
	cfg := config.Load()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	step1_api_keys(ctx, client)
	step2_registry_events(ctx, client)
	step3_verify(ctx, client)

	fmt.Println("\n✅ Redis seeded successfully")
	fmt.Println("   Run next: go run ./cmd/telemetryd")
}

func step1_api_keys(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 1: Seeding API keys ────────────────────")

	// Key pattern: fleet:auth:{api_key} → owner
	// TTL = 0 means permanent, these never expire
	apiKeys := map[string]string{
		"ops_dashboard_key": "ops_dashboard",
		"registry_sync_key": "registry_sync",
		"test_key":          "test",
	}

	for apiKey, owner := range apiKeys {
		key := store.AuthKey(apiKey)
		if err := client.Set(ctx, key, owner, 0).Err(); err != nil {
			log.Fatalf("Failed to set key %s: %v", key, err)
		}
		fmt.Printf("  ✓ %-35s → %s\n", key, owner)
	}
}

func step2_registry_events(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 2: Publishing registry events ──────────")

	// Picked up by a running telemetryd with REDIS_ENABLED=true.
	events := []ingest.Event{
		{Op: ingest.OpUpsert, ID: "EV-MH-101", Attrs: map[string]any{"status": "on-trip", "batteryLevel": 48.0, "range": 144}},
		{Op: ingest.OpUpsert, ID: "EV-MH-102", Attrs: map[string]any{"status": "charging", "batteryLevel": 17.5}},
		{Op: ingest.OpStatus, ID: "EV-MH-101", Status: "available"},
	}

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Fatalf("Failed to encode event for %s: %v", ev.ID, err)
		}
		receivers, err := client.Publish(ctx, store.RegistryEventsChannel, payload).Result()
		if err != nil {
			log.Fatalf("Failed to publish event for %s: %v", ev.ID, err)
		}
		fmt.Printf("  ✓ %-7s %-10s (%d subscribers)\n", ev.Op, ev.ID, receivers)
	}
}

func step3_verify(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 3: Verification ────────────────────────")

	keys, err := client.Keys(ctx, store.AuthKey("*")).Result()
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d API keys found in Redis\n", len(keys))

	val, err := client.Get(ctx, store.AuthKey("test_key")).Result()
	if err != nil {
		log.Fatalf("Spot check failed: %v", err)
	}
	fmt.Printf("  ✓ spot check: %s → %s\n", store.AuthKey("test_key"), val)
}
