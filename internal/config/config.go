package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP / WebSocket
	HTTPAddr       string
	WSPath         string
	WSReadLimit    int64
	WSWriteTimeout time.Duration

	// Simulation
	TickInterval time.Duration
	RandomSeed   uint64

	// Broadcast
	PruneAfterFailures int64

	// Postgres
	DBEnabled  bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStateTTL time.Duration

	// MQTT
	MQTTBroker    string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	MQTTTopicRoot string

	// Alerts
	AlertsEnabled bool
	AlertDedupTTL time.Duration

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string
}

func Load() *Config {
	return &Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		WSPath:              getEnv("WS_PATH", "/ws"),
		WSReadLimit:         getEnvInt64("WS_READ_LIMIT", 4096),
		WSWriteTimeout:      getEnvDuration("WS_WRITE_TIMEOUT", 0),
		TickInterval:        getEnvDuration("SIM_TICK_INTERVAL", 5*time.Second),
		RandomSeed:          uint64(getEnvInt64("SIM_RANDOM_SEED", 0)),
		PruneAfterFailures:  getEnvInt64("BROADCAST_PRUNE_AFTER_FAILURES", 0),
		DBEnabled:           getEnvBool("DB_ENABLED", false),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "fleet_user"),
		DBPassword:          getEnv("DB_PASSWORD", "fleet_password"),
		DBName:              getEnv("DB_NAME", "fleet_monitor"),
		DBMaxConns:          int32(getEnvInt("DB_MAX_CONNS", 5)),
		RedisEnabled:        getEnvBool("REDIS_ENABLED", false),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		RedisStateTTL:       getEnvDuration("REDIS_STATE_TTL", 30*time.Second),
		MQTTBroker:          getEnv("MQTT_BROKER", ""),
		MQTTClientID:        getEnv("MQTT_CLIENT_ID", "telemetryd"),
		MQTTUsername:        getEnv("MQTT_USERNAME", ""),
		MQTTPassword:        getEnv("MQTT_PASSWORD", ""),
		MQTTTopicRoot:       getEnv("MQTT_TOPIC_ROOT", "fleet/v1"),
		AlertsEnabled:       getEnvBool("ALERTS_ENABLED", true),
		AlertDedupTTL:       getEnvDuration("ALERT_DEDUP_TTL", 5*time.Minute),
		AuthCacheTTLSeconds: getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:        splitList(getEnv("VALID_API_KEYS", "")),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR must not be empty"))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		errs = append(errs, fmt.Errorf("WS_PATH %q must start with /", c.WSPath))
	}
	if c.WSReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("WS_READ_LIMIT must be positive, got %d", c.WSReadLimit))
	}
	if c.WSWriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("WS_WRITE_TIMEOUT must not be negative, got %s", c.WSWriteTimeout))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("SIM_TICK_INTERVAL must be positive, got %s", c.TickInterval))
	}
	if c.PruneAfterFailures < 0 {
		errs = append(errs, fmt.Errorf("BROADCAST_PRUNE_AFTER_FAILURES must not be negative, got %d", c.PruneAfterFailures))
	}
	if c.DBEnabled && c.DBMaxConns <= 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns))
	}
	if c.RedisEnabled && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR must be set when REDIS_ENABLED"))
	}
	if c.AlertDedupTTL <= 0 {
		errs = append(errs, fmt.Errorf("ALERT_DEDUP_TTL must be positive, got %s", c.AlertDedupTTL))
	}
	if c.MQTTBroker != "" && c.MQTTTopicRoot == "" {
		errs = append(errs, errors.New("MQTT_TOPIC_ROOT must be set when MQTT_BROKER is"))
	}
	return errors.Join(errs...)
}

// DatabaseURL builds the pgx connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&pool_max_conns=%d",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBMaxConns)
}

// AuthRequired reports whether mutating routes need an API key.
func (c *Config) AuthRequired() bool {
	return len(c.ValidAPIKeys) > 0 || c.RedisEnabled
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
