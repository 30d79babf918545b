// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// Database is the tenant registry.
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`

	// Store configures the caller-addressed document stores.
	Store StoreConfig `yaml:"store"`

	RabbitMQ struct {
		URL string `yaml:"url"`
	} `yaml:"rabbitmq"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Workers int `yaml:"workers"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Quota struct {
		FreeTierLimit int `yaml:"free_tier_limit"`
	} `yaml:"quota"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Logging LoggingConfig `yaml:"logging"`
}

type StoreConfig struct {
	Driver           string        `yaml:"driver"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Database.Driver = "postgres"
	cfg.Store.Driver = "mongo"
	cfg.Store.ConnectTimeout = 10 * time.Second
	cfg.Store.OperationTimeout = 30 * time.Second
	cfg.Redis.TTL = time.Minute
	cfg.Workers = 4
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Quota.FreeTierLimit = 5
	cfg.RateLimit.RequestsPerSecond = 20
	cfg.RateLimit.Burst = 40
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

// LoadConfig reads a YAML file on top of Default. ${VAR} references in the
// file are expanded from the environment before parsing.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	switch c.Store.Driver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.ConnectTimeout <= 0 || c.Store.OperationTimeout <= 0 {
		return fmt.Errorf("store timeouts must be positive")
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Quota.FreeTierLimit <= 0 {
		return fmt.Errorf("quota.free_tier_limit must be positive, got %d", c.Quota.FreeTierLimit)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}
