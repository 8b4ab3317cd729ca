package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	StoreDriver      string        `mapstructure:"STORE_DRIVER"`
	SQLitePath       string        `mapstructure:"SQLITE_PATH"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	KVPath           string        `mapstructure:"KV_PATH"`
	Timezone         string        `mapstructure:"TIMEZONE"`
	PushoverAPIToken string        `mapstructure:"PUSHOVER_API_TOKEN"`
	PushoverUserKey  string        `mapstructure:"PUSHOVER_USER_KEY"`
	PushoverDevice   string        `mapstructure:"PUSHOVER_DEVICE"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "pillbox.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("KV_PATH", "pillbox-kv")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8081")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "STORE_DRIVER", "SQLITE_PATH", "DATABASE_URL",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "KV_PATH", "TIMEZONE",
		"PUSHOVER_API_TOKEN", "PUSHOVER_USER_KEY", "PUSHOVER_DEVICE", "CORS_ORIGINS",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// PushoverEnabled reports whether fired reminders should be pushed through Pushover.
func (c *Config) PushoverEnabled() bool {
	return c.PushoverAPIToken != ""
}

// Location resolves TIMEZONE. Reminders fire and "today" is computed in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks the store selection and delivery settings.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", DriverSQLite)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.StoreDriver)
	}

	if c.KVPath == "" {
		return fmt.Errorf("KV_PATH is required")
	}

	if c.PushoverAPIToken != "" && c.PushoverUserKey == "" {
		return fmt.Errorf("PUSHOVER_USER_KEY is required when PUSHOVER_API_TOKEN is set")
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
