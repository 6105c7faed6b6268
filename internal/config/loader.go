package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "hxpd.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HXPD_PORT")
	setString(&cfg.Server.CORSOrigin, "HXPD_CORS_ORIGIN")
	setString(&cfg.Storage.Driver, "HXPD_STORAGE_DRIVER")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "HXPD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "HXPD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "HXPD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "HXPD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "HXPD_PG_HEALTH_CHECK")
	setBool(&cfg.NATS.Enabled, "HXPD_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.IdempotencyBucket, "HXPD_IDEMPOTENCY_BUCKET")
	setString(&cfg.Logging.Level, "HXPD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HXPD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HXPD_LOG_ASYNC")
	setBool(&cfg.Auth.Enabled, "HXPD_AUTH_ENABLED")
	setInt64(&cfg.Cache.MaxSizeMB, "HXPD_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "HXPD_CACHE_TTL")
	setFloat64(&cfg.Rate.RequestsPerSecond, "HXPD_RATE_RPS")
	setInt(&cfg.Rate.Burst, "HXPD_RATE_BURST")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("storage.driver must be memory or postgres, got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "postgres" && cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required when storage.driver is postgres")
	}
	if cfg.Storage.Driver == "postgres" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats.enabled is true")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.Keys) == 0 {
		return errors.New("auth.keys must not be empty when auth.enabled is true")
	}
	for _, k := range cfg.Auth.Keys {
		if k.AgentID == "" {
			return errors.New("auth.keys entries require agent_id")
		}
		if k.Key == "" && k.Hash == "" {
			return fmt.Errorf("auth key for %s requires key or hash", k.AgentID)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
