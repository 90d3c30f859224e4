// Package config loads the keeper daemon's environment-variable driven
// configuration, in the teacher's Config+Validate shape, using
// caarlos0/env for struct-tag parsing (grounded on
// louisbranch-fracturing.space's internal/platform/config/env.go).
package config

import (
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ai-trpg/keeper/internal/errors"
)

// Config holds every environment-driven setting the daemon needs to wire
// its stores, catalog, oracle adapters, and HTTP/WebSocket surface.
type Config struct {
	HTTPAddr string `env:"KEEPER_HTTP_ADDR" envDefault:":8080"`

	RedisAddr     string        `env:"KEEPER_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPoolSize int           `env:"KEEPER_REDIS_POOL_SIZE" envDefault:"10"`
	RedisMaxRetry int           `env:"KEEPER_REDIS_MAX_RETRIES" envDefault:"3"`
	RedisIdleTime time.Duration `env:"KEEPER_REDIS_IDLE_TIME" envDefault:"5m"`

	PostgresDSN       string `env:"KEEPER_POSTGRES_DSN,required"`
	MigrationsPath    string `env:"KEEPER_MIGRATIONS_PATH" envDefault:"file://migrations"`
	SkipAutoMigration bool   `env:"KEEPER_SKIP_AUTO_MIGRATION" envDefault:"false"`

	OracleEndpoint string        `env:"KEEPER_ORACLE_ENDPOINT,required"`
	OracleAPIKey   string        `env:"KEEPER_ORACLE_API_KEY"`
	OracleTimeout  time.Duration `env:"KEEPER_ORACLE_TIMEOUT" envDefault:"15s"`

	MemoryEndpoint string `env:"KEEPER_MEMORY_ENDPOINT"`

	DiceHubClientBuffer int `env:"KEEPER_DICE_HUB_CLIENT_BUFFER" envDefault:"16"`

	LogLevel string `env:"KEEPER_LOG_LEVEL" envDefault:"info"`
}

// Load parses environment variables into a Config and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// Validate checks invariants env.Parse's struct tags cannot express on
// their own (ranges, cross-field constraints).
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.HTTPAddr == "" {
		vb.RequiredField("HTTPAddr")
	}
	if c.RedisAddr == "" {
		vb.RequiredField("RedisAddr")
	}
	if c.PostgresDSN == "" {
		vb.RequiredField("PostgresDSN")
	}
	if c.OracleEndpoint == "" {
		vb.RequiredField("OracleEndpoint")
	}
	if c.OracleTimeout <= 0 {
		vb.RequiredField("OracleTimeout")
	}
	if c.DiceHubClientBuffer <= 0 {
		vb.RequiredField("DiceHubClientBuffer")
	}
	return vb.Build()
}
