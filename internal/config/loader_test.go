package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "3402" {
		t.Errorf("port = %s, want 3402", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("driver = %s, want memory", cfg.Storage.Driver)
	}
	if cfg.NATS.Enabled {
		t.Error("nats should default to disabled")
	}
	if cfg.Auth.Enabled {
		t.Error("auth should default to disabled")
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hxpd.yaml")
	yaml := `
server:
  port: "8080"
storage:
  driver: postgres
postgres:
  dsn: postgres://x:y@db:5432/hxp
cache:
  ttl: 90s
directory:
  projects:
    - id: p1
      name: payments
      principals:
        - id: alice
          name: Alice
          owner: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Postgres.DSN != "postgres://x:y@db:5432/hxp" {
		t.Errorf("storage not overridden: %s / %s", cfg.Storage.Driver, cfg.Postgres.DSN)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("cache ttl = %v, want 90s", cfg.Cache.TTL)
	}
	if len(cfg.Directory.Projects) != 1 || len(cfg.Directory.Projects[0].Principals) != 1 {
		t.Fatalf("directory seeds not parsed: %+v", cfg.Directory)
	}
	if !cfg.Directory.Projects[0].Principals[0].Owner {
		t.Error("seed principal owner flag lost")
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hxpd.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"8080\"\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("HXPD_PORT", "9090")
	t.Setenv("HXPD_LOG_LEVEL", "debug")
	t.Setenv("HXPD_NATS_ENABLED", "true")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("HXPD_RATE_RPS", "2.5")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %s, want env override 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s", cfg.Logging.Level)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats env not applied: %+v", cfg.NATS)
	}
	if cfg.Rate.RequestsPerSecond != 2.5 {
		t.Errorf("rate = %v, want 2.5", cfg.Rate.RequestsPerSecond)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"bad driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) {
			c.Storage.Driver = "postgres"
			c.Postgres.DSN = ""
		}},
		{"nats without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.URL = ""
		}},
		{"zero burst", func(c *Config) { c.Rate.Burst = 0 }},
		{"auth without keys", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.Keys = nil
		}},
		{"key without agent_id", func(c *Config) {
			c.Auth.Keys = []AgentKey{{Key: "k"}}
		}},
		{"key without credential", func(c *Config) {
			c.Auth.Keys = []AgentKey{{AgentID: "a"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hxpd.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("malformed yaml should fail")
	}
}
