// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Prefix is prepended to every environment key.
const Prefix = "INFLUENCE_"

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Store         string `env:"STORE" envDefault:"memory"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	DatabaseURL   string `env:"DATABASE_URL"`

	ResponseTimeout        time.Duration `env:"RESPONSE_TIMEOUT" envDefault:"30s"`
	MaxCASAttempts         int           `env:"MAX_CAS_ATTEMPTS" envDefault:"8"`
	EscalatorSweepInterval time.Duration `env:"ESCALATOR_SWEEP_INTERVAL" envDefault:"5s"`
	BotThinkDelay          time.Duration `env:"BOT_THINK_DELAY" envDefault:"750ms"`
	TrustedCallerSecret    string        `env:"TRUSTED_CALLER_SECRET"`
}

// Load reads an optional .env file at path and then parses the environment.
// Variables already set in the environment win over the file.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return Parse(nil)
}

// Parse builds a Config from environ, or from the process environment when
// environ is nil.
func Parse(environ map[string]string) (Config, error) {
	opts := env.Options{Prefix: Prefix}
	if environ != nil {
		opts.Environment = environ
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: %sDATABASE_URL is required for the postgres store", Prefix)
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.MaxCASAttempts < 1 {
		return fmt.Errorf("config: %sMAX_CAS_ATTEMPTS must be at least 1", Prefix)
	}
	if c.ResponseTimeout < 0 {
		return fmt.Errorf("config: %sRESPONSE_TIMEOUT must not be negative", Prefix)
	}
	if c.ResponseTimeout%time.Second != 0 {
		return fmt.Errorf("config: %sRESPONSE_TIMEOUT must be a whole number of seconds, got %s", Prefix, c.ResponseTimeout)
	}
	if c.EscalatorSweepInterval <= 0 {
		return fmt.Errorf("config: %sESCALATOR_SWEEP_INTERVAL must be positive", Prefix)
	}
	return nil
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(c Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	switch c.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return log, nil
}
