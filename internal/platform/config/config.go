package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	platformstrings "homeledger/pkg/platform/strings"
)

// DevSigningKey is used when JWT_SIGNING_KEY is unset. Never ship it.
const DevSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string        `env:"HOMELEDGER_ADDR" envDefault:":8080"`
	JWTSigningKey  string        `env:"JWT_SIGNING_KEY"`
	JWTIssuer      string        `env:"JWT_ISSUER"`
	InvitationTTL  time.Duration `env:"INVITATION_TTL" envDefault:"168h"`
	TxTimeout      time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`
	OTelEndpoint   string        `env:"OTEL_ENDPOINT"`

	Database DatabaseConfig
	Redis    RedisConfig
	Outbox   OutboxConfig
}

// DatabaseConfig selects Postgres when URL is set; otherwise storage is in-memory.
type DatabaseConfig struct {
	URL          string        `env:"DATABASE_URL"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig enables the shared idempotency cache when URL is set.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// OutboxConfig drives the notification relay. No brokers means no relay.
type OutboxConfig struct {
	KafkaBrokers []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic        string        `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"homeledger.notifications"`
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTSigningKey == "" {
		cfg.JWTSigningKey = DevSigningKey
	}
	cfg.Outbox.KafkaBrokers = platformstrings.CleanList(cfg.Outbox.KafkaBrokers)
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) validate() error {
	if c.InvitationTTL <= 0 {
		return fmt.Errorf("INVITATION_TTL must be positive, got %s", c.InvitationTTL)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("TX_TIMEOUT must be positive, got %s", c.TxTimeout)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.Outbox.BatchSize)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// UsesPostgres reports whether durable storage is configured.
func (c Server) UsesPostgres() bool { return c.Database.URL != "" }

// RelayEnabled reports whether outbox rows should be shipped to Kafka.
func (c Server) RelayEnabled() bool { return len(c.Outbox.KafkaBrokers) > 0 }
