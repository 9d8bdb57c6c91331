// Package config loads pipeline configuration from the environment.
// A .env file is honored when present; every field has a default that
// matches a local single-node deployment.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Aayush-engineer/chatflux/errors"
)

// Config holds all pipeline configuration.
type Config struct {
	HTTPPort int `envconfig:"WEB_APP_PORT" default:"3000"`

	NATS      NATSConfig
	Redis     RedisConfig
	Store     StoreConfig
	Consumer  ConsumerConfig
	Reconcile ReconcileConfig
	Read      ReadConfig

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// NATSConfig configures the broker connection shared by the broadcast
// channel and the durable log.
type NATSConfig struct {
	URL             string        `envconfig:"NATS_URL"              default:"nats://localhost:4222"`
	StreamName      string        `envconfig:"NATS_STREAM"           default:"CHAT_EVENTS"`
	SubjectPrefix   string        `envconfig:"NATS_SUBJECT_PREFIX"   default:"chat.events"`
	BroadcastPrefix string        `envconfig:"NATS_BROADCAST_PREFIX" default:"chat.broadcast"`
	ConsumerName    string        `envconfig:"NATS_CONSUMER_GROUP"   default:"chat-consumer-group"`
	ConnectTimeout  time.Duration `envconfig:"NATS_CONNECT_TIMEOUT"  default:"5s"`
	DrainTimeout    time.Duration `envconfig:"NATS_DRAIN_TIMEOUT"    default:"10s"`
}

// RedisConfig configures the bounded cache.
type RedisConfig struct {
	Addr        string `envconfig:"REDIS_ADDR"         default:"localhost:6379"`
	Password    string `envconfig:"REDIS_PASSWORD"     default:""`
	DB          int    `envconfig:"REDIS_DB"           default:"0"`
	KeyPrefix   string `envconfig:"REDIS_KEY_PREFIX"   default:"chat:messages"`
	MaxMessages int    `envconfig:"REDIS_MAX_MESSAGES" default:"5000"`
}

// StoreConfig configures the persistent store.
type StoreConfig struct {
	Path        string        `envconfig:"STORE_PATH"         default:"data/chatflux.db"`
	BusyTimeout time.Duration `envconfig:"STORE_BUSY_TIMEOUT" default:"5s"`
}

// ConsumerConfig configures the batching consumer.
type ConsumerConfig struct {
	BatchLimit       int           `envconfig:"PROCESS_MESSAGE_LIMIT" default:"10"`
	FlushInterval    time.Duration `envconfig:"FLUSH_INTERVAL"        default:"5s"`
	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT"         default:"1s"`
	MaxFlushAttempts int           `envconfig:"MAX_FLUSH_ATTEMPTS"    default:"3"`
}

// ReconcileConfig configures the periodic cache-heal, retention, and
// health-stats jobs. Schedules are standard cron expressions.
type ReconcileConfig struct {
	HealSchedule      string        `envconfig:"SYNC_CRON_SCHEDULE"      default:"*/5 * * * *"`
	HealWindow        time.Duration `envconfig:"SYNC_WINDOW"             default:"10m"`
	RetentionSchedule string        `envconfig:"RETENTION_CRON_SCHEDULE" default:"0 2 * * *"`
	RetentionHorizon  time.Duration `envconfig:"RETENTION_HORIZON"       default:"720h"`
	HealthSchedule    string        `envconfig:"HEALTH_CRON_SCHEDULE"    default:"0 * * * *"`
}

// ReadConfig bounds the read API surface.
type ReadConfig struct {
	DefaultLimit int `envconfig:"READ_DEFAULT_LIMIT" default:"50"`
	MaxLimit     int `envconfig:"READ_MAX_LIMIT"     default:"100"`
}

// Load reads configuration from the environment, honoring a local .env
// file when one exists.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be fully populated already
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", "process environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "check http port")
	}
	if c.NATS.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "check nats url")
	}
	if c.Redis.MaxMessages <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "check cache max size")
	}
	if c.Store.Path == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "check store path")
	}
	if c.Consumer.BatchLimit <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "check batch limit")
	}
	if c.Consumer.FlushInterval <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "check flush interval")
	}
	if c.Consumer.MaxFlushAttempts < 1 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "check flush attempts")
	}
	if c.Reconcile.HealWindow <= 0 || c.Reconcile.RetentionHorizon <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "check reconcile windows")
	}
	if c.Read.DefaultLimit < 1 || c.Read.MaxLimit < c.Read.DefaultLimit {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "check read limits")
	}
	return nil
}
