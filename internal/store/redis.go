package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-monitor/telemetry/internal/broadcast"
	"fleet-monitor/telemetry/internal/config"
	"fleet-monitor/telemetry/internal/domain"
)

const (
	GeoKey                = "fleet:geo"
	TelemetryChannel      = "fleet:telemetry"
	AlertsChannel         = "fleet:alerts"
	RegistryEventsChannel = "fleet:registry:events"
)

func StateKey(vehicleID string) string {
	return fmt.Sprintf("vehicle:%s:state", vehicleID)
}

func AuthKey(apiKey string) string {
	return fmt.Sprintf("fleet:auth:%s", apiKey)
}

func AlertDedupKey(vehicleID string, alertType domain.AlertType) string {
	return fmt.Sprintf("alert:%s:%s", vehicleID, string(alertType))
}

type RedisStore struct {
	client   *redis.Client
	stateTTL time.Duration
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, stateTTL: cfg.RedisStateTTL}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// StateFields is the hash written under StateKey for one snapshot.
func StateFields(v domain.VehicleTelemetry) map[string]any {
	return map[string]any{
		"id":             v.ID,
		"status":         string(v.Status),
		"battery_level":  v.BatteryLevel,
		"range_km":       v.Range,
		"battery_health": v.BatteryHealth,
		"lat":            v.Latitude,
		"lng":            v.Longitude,
		"last_update":    v.LastUpdate.UnixMilli(),
	}
}

// MirrorState writes the latest snapshot, indexes its position and
// republishes the observer payload, all in one pipeline.
func (r *RedisStore) MirrorState(ctx context.Context, v domain.VehicleTelemetry, payload []byte) error {
	key := StateKey(v.ID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, StateFields(v))
	pipe.Expire(ctx, key, r.stateTTL)
	pipe.GeoAdd(ctx, GeoKey, &redis.GeoLocation{
		Name:      v.ID,
		Longitude: v.Longitude,
		Latitude:  v.Latitude,
	})
	pipe.Publish(ctx, TelemetryChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// GetAPIKey returns the owner stored for apiKey, or "" if there is none.
func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	val, err := r.client.Get(ctx, AuthKey(apiKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}

// ClaimAlert marks vehicleID/alertType as raised for ttl. It returns false
// when the alert was already raised inside the window.
func (r *RedisStore) ClaimAlert(ctx context.Context, vehicleID string, alertType domain.AlertType, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, AlertDedupKey(vehicleID, alertType), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim failed: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) PublishAlert(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, AlertsChannel, payload).Err()
}

// RegistryEvents subscribes to the registry event channel. The returned
// channel is closed once ctx is done and the subscription is released.
func (r *RedisStore) RegistryEvents(ctx context.Context) (<-chan []byte, error) {
	ps := r.client.Subscribe(ctx, RegistryEventsChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", RegistryEventsChannel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// RedisMirror is a broadcast connection that keeps Redis in step with the
// simulation.
type RedisMirror struct {
	store *RedisStore
}

func NewRedisMirror(s *RedisStore) *RedisMirror {
	return &RedisMirror{store: s}
}

var _ broadcast.Conn = (*RedisMirror)(nil)

func (m *RedisMirror) Send(ctx context.Context, msg broadcast.Message) error {
	return m.store.MirrorState(ctx, msg.Snapshot, msg.Payload)
}
