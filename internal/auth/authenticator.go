package auth

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"fleet-monitor/telemetry/internal/config"
)

// KeyLookup resolves an API key to its owner. An empty owner with a nil
// error means the key is unknown.
type KeyLookup interface {
	GetAPIKey(ctx context.Context, apiKey string) (string, error)
}

type cacheEntry struct {
	owner     string
	expiresAt time.Time
}

type Authenticator struct {
	localCache sync.Map
	lookup     KeyLookup
	ttl        time.Duration
	staticKeys map[string]bool
	clock      clock.PassiveClock
}

// NewAuthenticator validates against the static keys in cfg and, when lookup
// is non-nil, against Redis-backed keys cached for AuthCacheTTLSeconds.
func NewAuthenticator(cfg *config.Config, lookup KeyLookup) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.ValidAPIKeys))
	for _, k := range cfg.ValidAPIKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}

	return &Authenticator{
		lookup:     lookup,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
		clock:      clock.RealClock{},
	}
}

// Enabled reports whether any key source is configured. A disabled
// authenticator lets every request through.
func (a *Authenticator) Enabled() bool {
	return len(a.staticKeys) > 0 || a.lookup != nil
}

func (a *Authenticator) Validate(ctx context.Context, apiKey string) bool {
	if apiKey == "" {
		return false
	}

	// Level 0: static config keys
	if a.staticKeys[apiKey] {
		return true
	}

	// Level 1: in-memory cache
	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if a.clock.Now().Before(entry.expiresAt) {
			return true
		}
		a.localCache.Delete(apiKey)
	}

	// Level 2: Redis lookup
	if a.lookup == nil {
		return false
	}
	owner, err := a.lookup.GetAPIKey(ctx, apiKey)
	if err != nil || owner == "" {
		return false
	}

	a.localCache.Store(apiKey, cacheEntry{
		owner:     owner,
		expiresAt: a.clock.Now().Add(a.ttl),
	})

	return true
}
