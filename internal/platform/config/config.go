package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Token store backends.
const (
	TokenStoreMemory   = "memory"
	TokenStorePostgres = "postgres"
	TokenStoreRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr          string `env:"ROLLCALL_ADDR" envDefault:":8080"`
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	TokenStore    string `env:"TOKEN_STORE" envDefault:"memory"`

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Sweeper  SweeperConfig
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	Migrate         bool          `env:"DATABASE_MIGRATE" envDefault:"true"`
}

// RedisConfig configures the QR token cache.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures domain event publishing. Without brokers events are
// written to the log.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic      string   `env:"KAFKA_TOPIC" envDefault:"rollcall.attendance.events"`
	ClientID   string   `env:"KAFKA_CLIENT_ID" envDefault:"rollcall"`
	Partitions int32    `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"6"`
	Replicas   int16    `env:"KAFKA_TOPIC_REPLICAS" envDefault:"1"`
}

// SweeperConfig controls removal of long-expired QR tokens.
type SweeperConfig struct {
	Interval  time.Duration `env:"TOKEN_SWEEP_INTERVAL" envDefault:"10m"`
	Retention time.Duration `env:"TOKEN_RETENTION" envDefault:"24h"`
}

// FromEnv loads .env when present and parses the environment.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) validate() error {
	switch c.TokenStore {
	case TokenStoreMemory:
	case TokenStorePostgres:
		if c.Database.URL == "" {
			return errors.New("TOKEN_STORE=postgres requires DATABASE_URL")
		}
	case TokenStoreRedis:
		if c.Redis.URL == "" {
			return errors.New("TOKEN_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q", c.TokenStore)
	}
	if c.JWTSigningKey == "" {
		return errors.New("JWT_SIGNING_KEY must not be empty")
	}
	return nil
}
