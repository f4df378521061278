package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  name: "Test Core"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  topic_prefix: "haptic"
api:
  host: "127.0.0.1"
  port: 9090
safety:
  max_ping_interval: 5000
  check_interval: 500
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Name != "Test Core" {
		t.Errorf("Server.Name = %q, want %q", cfg.Server.Name, "Test Core")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if got := cfg.Safety.MaxPingIntervalDuration(); got != 5*time.Second {
		t.Errorf("MaxPingIntervalDuration() = %v, want 5s", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Minimal file; everything else comes from defaults.
	cfg, err := Load(writeConfig(t, "server:\n  name: \"X\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.SchemaVersionMin != 1 || cfg.Server.SchemaVersionMax != 3 {
		t.Errorf("schema version range = [%d,%d], want [1,3]",
			cfg.Server.SchemaVersionMin, cfg.Server.SchemaVersionMax)
	}
	if cfg.Safety.StopScope != StopScopeGlobal {
		t.Errorf("Safety.StopScope = %q, want %q", cfg.Safety.StopScope, StopScopeGlobal)
	}
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("WebSocket.Path = %q, want /ws", cfg.WebSocket.Path)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HAPTIC_DATABASE_PATH", "/tmp/env-override.db")
	t.Setenv("HAPTIC_API_PORT", "7070")

	cfg, err := Load(writeConfig(t, "database:\n  path: \"/tmp/file.db\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/env-override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("API.Port = %d, want 7070", cfg.API.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty server name",
			mutate:  func(c *Config) { c.Server.Name = "" },
			wantErr: "server.name",
		},
		{
			name: "inverted schema version range",
			mutate: func(c *Config) {
				c.Server.SchemaVersionMin = 3
				c.Server.SchemaVersionMax = 1
			},
			wantErr: "schema_version",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "check interval not shorter than ping interval",
			mutate: func(c *Config) {
				c.Safety.MaxPingInterval = 1000
				c.Safety.CheckInterval = 1000
			},
			wantErr: "check_interval",
		},
		{
			name:    "unknown stop scope",
			mutate:  func(c *Config) { c.Safety.StopScope = "everything" },
			wantErr: "stop_scope",
		},
		{
			name: "auth enabled without secret",
			mutate: func(c *Config) {
				c.Security.Auth.Enabled = true
			},
			wantErr: "security.auth.secret",
		},
		{
			name: "auth secret too short",
			mutate: func(c *Config) {
				c.Security.Auth.Enabled = true
				c.Security.Auth.Secret = "short"
			},
			wantErr: "at least 32",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}
