// Package config loads server and CLI settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Registry backends.
const (
	RegistryMemory    = "memory"
	RegistrySurrealDB = "surrealdb"
	RegistryPostgres  = "postgres"
)

// Event bus backends.
const (
	EventBusMemory = "memory"
	EventBusRedis  = "redis"
)

// DefaultWorkerAddress is used when neither WORKER_ADDRESS nor BACKEND_ADDRESS is set.
const DefaultWorkerAddress = "ws://localhost:8000"

// Config holds all configuration values.
type Config struct {
	Port int `env:"FWML_SERVER_PORT" envDefault:"4000"`

	Worker WorkerConfig

	// Model registry
	Registry    string          `env:"REGISTRY_BACKEND" envDefault:"memory"`
	SurrealDB   SurrealDBConfig `envPrefix:"SURREALDB_"`
	PostgresDSN string          `env:"POSTGRES_DSN"`

	// Job event fan-out
	EventBus string      `env:"EVENT_BUS" envDefault:"memory"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// JobRetention evicts finished jobs after this long. Zero keeps them.
	JobRetention time.Duration `env:"FWML_JOB_RETENTION" envDefault:"0s"`

	// Logging
	LogFile      string `env:"FWML_LOG_FILE" envDefault:"/tmp/fwml-server.log"`
	LogLevelName string `env:"FWML_LOG_LEVEL" envDefault:"INFO"`

	// ServerURL is the GraphQL endpoint the CLI talks to.
	ServerURL string `env:"FWML_SERVER_URL" envDefault:"http://localhost:4000/query"`
}

// WorkerConfig configures sessions with the remote worker.
type WorkerConfig struct {
	Address string `env:"WORKER_ADDRESS"`
	// LegacyAddress is the variable name earlier deployments used.
	LegacyAddress    string        `env:"BACKEND_ADDRESS"`
	HandshakeTimeout time.Duration `env:"WORKER_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	IdleTimeout      time.Duration `env:"WORKER_IDLE_TIMEOUT" envDefault:"0s"`
	DeleteTimeout    time.Duration `env:"WORKER_DELETE_TIMEOUT" envDefault:"30s"`
}

// SurrealDBConfig holds SurrealDB connection settings.
type SurrealDBConfig struct {
	URL       string `env:"URL" envDefault:"ws://localhost:8001/rpc"`
	Namespace string `env:"NAMESPACE" envDefault:"fwml"`
	Database  string `env:"DATABASE" envDefault:"models"`
	User      string `env:"USER" envDefault:"root"`
	Pass      string `env:"PASS" envDefault:"root"`
	AuthLevel string `env:"AUTH_LEVEL" envDefault:"root"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr          string `env:"ADDR" envDefault:"localhost:6379"`
	Password      string `env:"PASSWORD"`
	DB            int    `env:"DB" envDefault:"0"`
	ChannelPrefix string `env:"CHANNEL_PREFIX" envDefault:"fwml:"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Worker.Address == "" {
		cfg.Worker.Address = cfg.Worker.LegacyAddress
	}
	if cfg.Worker.Address == "" {
		cfg.Worker.Address = DefaultWorkerAddress
	}
	cfg.Registry = strings.ToLower(strings.TrimSpace(cfg.Registry))
	cfg.EventBus = strings.ToLower(strings.TrimSpace(cfg.EventBus))
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("FWML_SERVER_PORT %d out of range", c.Port))
	}

	u, err := url.Parse(c.Worker.Address)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("WORKER_ADDRESS: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("WORKER_ADDRESS %q must use ws:// or wss://", c.Worker.Address))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("WORKER_ADDRESS %q has no host", c.Worker.Address))
	}

	if c.Worker.HandshakeTimeout < 0 || c.Worker.IdleTimeout < 0 || c.Worker.DeleteTimeout < 0 {
		errs = append(errs, errors.New("worker timeouts must not be negative"))
	}
	if c.JobRetention < 0 {
		errs = append(errs, errors.New("FWML_JOB_RETENTION must not be negative"))
	}

	switch c.Registry {
	case RegistryMemory, RegistrySurrealDB:
	case RegistryPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres registry"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REGISTRY_BACKEND %q", c.Registry))
	}

	switch c.EventBus {
	case EventBusMemory, EventBusRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown EVENT_BUS %q", c.EventBus))
	}

	return errors.Join(errs...)
}

// LogLevel returns the parsed FWML_LOG_LEVEL.
func (c Config) LogLevel() slog.Level {
	return parseLogLevel(c.LogLevelName)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
