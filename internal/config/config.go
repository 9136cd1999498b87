package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

const (
	idemTTLSecondsEnvVar  = "IDEMPOTENCY_TTL_SECONDS"
	shutdownSecondsEnvVar = "SHUTDOWN_TIMEOUT_SECONDS"
	devJWTSecret          = "campus-market-dev-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName           string          `env:"APP_NAME" envDefault:"CampusMarket"`
	AppEnv            string          `env:"APP_ENV" envDefault:"development"`
	Port              string          `env:"PORT" envDefault:"8080"`
	LogLevel          string          `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL       string          `env:"DATABASE_URL"`
	RedisURL          string          `env:"REDIS_URL"`
	CatalogSQLitePath string          `env:"CATALOG_SQLITE_PATH"`
	ShutdownPeriod    time.Duration   `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL    time.Duration   `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	JWTSecret         string          `env:"JWT_SECRET"`
	AccessTokenTTL    time.Duration   `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	FeeRate           decimal.Decimal `env:"FEE_RATE" envDefault:"0.02"`
	VerificationCode  string          `env:"VERIFICATION_CODE" envDefault:"123456"`
	LoginAttempts     int             `env:"LOGIN_ATTEMPTS_PER_MINUTE" envDefault:"5"`
	SeedDemo          bool            `env:"SEED_DEMO" envDefault:"false"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	}

	if cfg.FeeRate.IsNegative() || cfg.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("FEE_RATE must be in [0, 1), got %s", cfg.FeeRate)
	}

	if strings.TrimSpace(cfg.VerificationCode) == "" {
		return Config{}, fmt.Errorf("VERIFICATION_CODE must not be empty")
	}

	if cfg.IsDev() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
