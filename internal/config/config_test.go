// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, path resolution and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "gateway.yaml", `
server:
  http_addr: "127.0.0.1:9000"
studio:
  handshake_timeout: "5s"
  keepalive_interval: "0s"
  max_frame_bytes: 1024
  poll:
    enabled: false
mcp:
  require_auth: true
auth:
  jwt_secret: "shh"
history:
  path: "/tmp/history.db"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9000")
	}
	if cfg.Studio.HandshakeTimeout != 5*time.Second {
		t.Errorf("Studio.HandshakeTimeout = %v, want 5s", cfg.Studio.HandshakeTimeout)
	}
	if cfg.Studio.KeepaliveInterval != 0 {
		t.Errorf("Studio.KeepaliveInterval = %v, want 0", cfg.Studio.KeepaliveInterval)
	}
	if cfg.Studio.MaxFrameBytes != 1024 {
		t.Errorf("Studio.MaxFrameBytes = %d, want 1024", cfg.Studio.MaxFrameBytes)
	}
	if cfg.Studio.Poll.Enabled {
		t.Error("Studio.Poll.Enabled = true, want false")
	}
	if !cfg.MCP.RequireAuth || cfg.Auth.JWTSecret != "shh" {
		t.Errorf("auth settings not loaded: %+v %+v", cfg.MCP, cfg.Auth)
	}
	if cfg.History.Path != "/tmp/history.db" {
		t.Errorf("History.Path = %q", cfg.History.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:9001"

[studio]
handshake_timeout = "3s"

[studio.poll]
wait = "2s"
idle_timeout = "10s"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9001" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Studio.HandshakeTimeout != 3*time.Second {
		t.Errorf("Studio.HandshakeTimeout = %v, want 3s", cfg.Studio.HandshakeTimeout)
	}
	if cfg.Studio.Poll.Wait != 2*time.Second || cfg.Studio.Poll.IdleTimeout != 10*time.Second {
		t.Errorf("Studio.Poll = %+v", cfg.Studio.Poll)
	}
	if !cfg.Studio.Poll.Enabled {
		t.Error("Studio.Poll.Enabled should keep its default")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "gateway.yaml", "logging:\n  level: debug\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := Default()
	if cfg.Server.HTTPAddr != def.Server.HTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want default %q", cfg.Server.HTTPAddr, def.Server.HTTPAddr)
	}
	if cfg.Studio.HandshakeTimeout != def.Studio.HandshakeTimeout {
		t.Errorf("Studio.HandshakeTimeout = %v, want default", cfg.Studio.HandshakeTimeout)
	}
	if cfg.Studio.Poll.IdleTimeout != 60*time.Second {
		t.Errorf("Studio.Poll.IdleTimeout = %v, want 60s", cfg.Studio.Poll.IdleTimeout)
	}
	if cfg.Studio.MaxFrameBytes != 16777216 {
		t.Errorf("Studio.MaxFrameBytes = %d", cfg.Studio.MaxFrameBytes)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_STUDIO_SECRET", "from-env")
	path := writeFile(t, "gateway.yaml", `
auth:
  jwt_secret: "${TEST_STUDIO_SECRET}"
history:
  path: "${TEST_STUDIO_UNSET_VAR}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "from-env")
	}
	if cfg.History.Path != "" {
		t.Errorf("History.Path = %q, want empty for unset variable", cfg.History.Path)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"bad yaml", "c.yaml", "server: [", "parsing config file"},
		{"bad toml", "c.toml", "[server", "parsing config file"},
		{"bad duration", "c.yaml", "studio:\n  handshake_timeout: soon\n", "studio.handshake_timeout"},
		{"bad addr", "c.yaml", "server:\n  http_addr: nope\n", "server.http_addr"},
		{"auth without secret", "c.yaml", "mcp:\n  require_auth: true\n", "auth.jwt_secret is required"},
		{"idle shorter than wait", "c.yaml", "studio:\n  poll:\n    wait: 30s\n    idle_timeout: 10s\n", "idle_timeout"},
		{"bad log level", "c.yaml", "logging:\n  level: loud\n", "logging.level"},
		{"bad log format", "c.yaml", "logging:\n  format: xml\n", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:44755" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/env/gateway.yaml")
		if got := ResolvePath("/flag/gateway.yaml"); got != "/flag/gateway.yaml" {
			t.Errorf("ResolvePath() = %q", got)
		}
	})

	t.Run("env before xdg", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/env/gateway.yaml")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		if got := ResolvePath(""); got != "/env/gateway.yaml" {
			t.Errorf("ResolvePath() = %q", got)
		}
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		want := filepath.Join("/xdg", "studio-gateway", "gateway.yaml")
		if got := ResolvePath(""); got != want {
			t.Errorf("ResolvePath() = %q, want %q", got, want)
		}
	})
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gateway.yaml")

	cfg := Default()
	cfg.Logging.Level = "debug"
	if err := Write(path, cfg, false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", loaded.Logging.Level)
	}
	if loaded.Studio.Poll.Wait != 15*time.Second {
		t.Errorf("Studio.Poll.Wait = %v", loaded.Studio.Poll.Wait)
	}

	if err := Write(path, cfg, false); err == nil {
		t.Error("Write() should refuse to overwrite without the flag")
	}
	if err := Write(path, cfg, true); err != nil {
		t.Errorf("Write(overwrite) error = %v", err)
	}
}
