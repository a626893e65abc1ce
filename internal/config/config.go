package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
)

type Config struct {
	Env               string          `mapstructure:"ENV"`
	LogLevel          string          `mapstructure:"LOG_LEVEL"`
	ServiceURL        string          `mapstructure:"SERVICE_URL"`
	ActorRole         string          `mapstructure:"ACTOR_ROLE"`
	ActorToken        string          `mapstructure:"ACTOR_TOKEN"`
	RequestTimeout    time.Duration   `mapstructure:"REQUEST_TIMEOUT"`
	ViewCacheSize     int             `mapstructure:"VIEW_CACHE_SIZE"`
	TaxRate           decimal.Decimal `mapstructure:"-"`
	SandboxPort       string          `mapstructure:"SANDBOX_PORT"`
	SandboxSigningKey string          `mapstructure:"SANDBOX_SIGNING_KEY"`
	CORSOrigins       []string        `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"ENV", "LOG_LEVEL", "SERVICE_URL", "ACTOR_ROLE", "ACTOR_TOKEN", "REQUEST_TIMEOUT",
	"VIEW_CACHE_SIZE", "TAX_RATE", "SANDBOX_PORT", "SANDBOX_SIGNING_KEY", "CORS_ORIGINS",
}

// Load reads the environment and an optional .env file from the working
// directory. It applies defaults but does not validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVICE_URL", "http://localhost:8000")
	v.SetDefault("ACTOR_ROLE", string(lifecycle.RoleReceptionist))
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("VIEW_CACHE_SIZE", 256)
	v.SetDefault("TAX_RATE", "0")
	v.SetDefault("SANDBOX_PORT", "8000")
	v.SetDefault("SANDBOX_SIGNING_KEY", "sandbox-signing-key")
	v.SetDefault("CORS_ORIGINS", "")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	tax, err := decimal.NewFromString(strings.TrimSpace(v.GetString("TAX_RATE")))
	if err != nil {
		return nil, fmt.Errorf("TAX_RATE %q is not a number: %w", v.GetString("TAX_RATE"), err)
	}
	cfg.TaxRate = tax

	cfg.CORSOrigins = nil
	for _, o := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Role returns the configured actor role.
func (c *Config) Role() (lifecycle.Role, error) {
	return lifecycle.ParseRole(c.ActorRole)
}

// Level returns the zerolog level for LOG_LEVEL.
func (c *Config) Level() (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(c.LogLevel))
}

// Validate rejects settings the client or sandbox cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Role(); err != nil {
		return fmt.Errorf("ACTOR_ROLE: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.ViewCacheSize <= 0 {
		return fmt.Errorf("VIEW_CACHE_SIZE must be positive, got %d", c.ViewCacheSize)
	}
	if c.TaxRate.IsNegative() {
		return fmt.Errorf("TAX_RATE must not be negative, got %s", c.TaxRate)
	}
	if c.SandboxPort == "" {
		return fmt.Errorf("SANDBOX_PORT is required")
	}
	return nil
}
