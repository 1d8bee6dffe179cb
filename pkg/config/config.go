package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable consumed by the service.
const EnvPrefix = "shopper"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced from code and tests.
const (
	EnvAppEnv   = "SHOPPER_APP_ENV"
	EnvDBPath   = "SHOPPER_DB_PATH"
	EnvRedisURL = "SHOPPER_REDIS_URL"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Sync     SyncConfig
	Presence PresenceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPPER_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"SHOPPER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPPER_LOG_WARN_STACK" default:"false"`
	MetricsPort  string `envconfig:"SHOPPER_METRICS_PORT" default:""`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig describes the on-device sqlite store.
type DBConfig struct {
	Path            string        `envconfig:"SHOPPER_DB_PATH" required:"true"`
	BusyTimeout     time.Duration `envconfig:"SHOPPER_DB_BUSY_TIMEOUT" default:"5s"`
	MaxOpenConns    int           `envconfig:"SHOPPER_DB_MAX_OPEN_CONNS" default:"1"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPPER_DB_CONN_MAX_LIFETIME" default:"1h"`
}

// DSN renders the sqlite datasource string.
func (d DBConfig) DSN() string {
	if strings.Contains(d.Path, "?") {
		return d.Path
	}
	return fmt.Sprintf("%s?_busy_timeout=%d", d.Path, d.BusyTimeout.Milliseconds())
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPPER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPPER_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPPER_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPPER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPPER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPPER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPPER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPPER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPPER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SyncConfig tunes the dual-write and stream-merge layer.
type SyncConfig struct {
	StreamBuffer   int           `envconfig:"SHOPPER_SYNC_STREAM_BUFFER" default:"8"`
	FlushBatchSize int           `envconfig:"SHOPPER_SYNC_FLUSH_BATCH_SIZE" default:"50"`
	PendingMaxAge  time.Duration `envconfig:"SHOPPER_SYNC_PENDING_MAX_AGE" default:"168h"`
}

// PresenceConfig tunes the presence tracker.
type PresenceConfig struct {
	LivenessTTL time.Duration `envconfig:"SHOPPER_PRESENCE_LIVENESS_TTL" default:"30s"`
}
