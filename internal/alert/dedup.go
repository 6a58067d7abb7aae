package alert

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"fleet-monitor/telemetry/internal/domain"
)

// Deduper suppresses repeats of the same alert for one vehicle. Claim
// returns true the first time inside the window.
type Deduper interface {
	Claim(ctx context.Context, vehicleID string, t domain.AlertType) (bool, error)
}

type dedupKey struct {
	vehicleID string
	alertType domain.AlertType
}

// MemoryDeduper keeps dedup windows in process.
type MemoryDeduper struct {
	ttl   time.Duration
	clock clock.PassiveClock

	mu      sync.Mutex
	entries map[dedupKey]time.Time
}

func NewMemoryDeduper(ttl time.Duration, clk clock.PassiveClock) *MemoryDeduper {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryDeduper{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[dedupKey]time.Time),
	}
}

func (d *MemoryDeduper) Claim(_ context.Context, vehicleID string, t domain.AlertType) (bool, error) {
	now := d.clock.Now()
	key := dedupKey{vehicleID: vehicleID, alertType: t}

	d.mu.Lock()
	defer d.mu.Unlock()

	if until, ok := d.entries[key]; ok && now.Before(until) {
		return false, nil
	}
	d.entries[key] = now.Add(d.ttl)

	// Sweep expired windows so removed vehicles do not pin memory.
	if len(d.entries) > 1024 {
		for k, until := range d.entries {
			if !now.Before(until) {
				delete(d.entries, k)
			}
		}
	}
	return true, nil
}

// RedisClaimer is the subset of the Redis store used for shared dedup.
type RedisClaimer interface {
	ClaimAlert(ctx context.Context, vehicleID string, t domain.AlertType, ttl time.Duration) (bool, error)
}

type redisDeduper struct {
	r   RedisClaimer
	ttl time.Duration
}

// NewRedisDeduper shares dedup windows across instances through Redis.
func NewRedisDeduper(r RedisClaimer, ttl time.Duration) Deduper {
	return &redisDeduper{r: r, ttl: ttl}
}

func (d *redisDeduper) Claim(ctx context.Context, vehicleID string, t domain.AlertType) (bool, error) {
	return d.r.ClaimAlert(ctx, vehicleID, t, d.ttl)
}
