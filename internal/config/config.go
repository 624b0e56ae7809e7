// ABOUTME: Configuration loading and parsing for studio-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config location.
const EnvConfigPath = "STUDIO_GATEWAY_CONFIG"

// Config represents the complete studio-gateway configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Studio  StudioConfig  `yaml:"studio" toml:"studio"`
	MCP     MCPConfig     `yaml:"mcp" toml:"mcp"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	History HistoryConfig `yaml:"history" toml:"history"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the listen address shared by studios and MCP clients
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// StudioConfig holds studio connection settings
type StudioConfig struct {
	HandshakeTimeout  time.Duration `yaml:"-" toml:"-"`
	KeepaliveInterval time.Duration `yaml:"-" toml:"-"`
	MaxFrameBytes     int64         `yaml:"max_frame_bytes" toml:"max_frame_bytes"`
	Poll              PollConfig    `yaml:"poll" toml:"poll"`

	// Raw string values for unmarshaling
	HandshakeTimeoutRaw  string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	KeepaliveIntervalRaw string `yaml:"keepalive_interval" toml:"keepalive_interval"`
}

// PollConfig holds the long-poll transport settings
type PollConfig struct {
	Enabled     bool          `yaml:"enabled" toml:"enabled"`
	Wait        time.Duration `yaml:"-" toml:"-"`
	IdleTimeout time.Duration `yaml:"-" toml:"-"`

	WaitRaw        string `yaml:"wait" toml:"wait"`
	IdleTimeoutRaw string `yaml:"idle_timeout" toml:"idle_timeout"`
}

// MCPConfig holds MCP endpoint settings
type MCPConfig struct {
	RequireAuth bool `yaml:"require_auth" toml:"require_auth"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// HistoryConfig holds the optional history log location. Empty disables it.
type HistoryConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: "127.0.0.1:44755"},
		Studio: StudioConfig{
			HandshakeTimeout:     10 * time.Second,
			KeepaliveInterval:    30 * time.Second,
			MaxFrameBytes:        16 << 20,
			HandshakeTimeoutRaw:  "10s",
			KeepaliveIntervalRaw: "30s",
			Poll: PollConfig{
				Enabled:        true,
				Wait:           15 * time.Second,
				IdleTimeout:    60 * time.Second,
				WaitRaw:        "15s",
				IdleTimeoutRaw: "60s",
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML. Values
// missing from the file keep their defaults. Environment variables in the
// format ${VAR_NAME} are expanded before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ResolvePath picks the config file location: the explicit flag value, then
// $STUDIO_GATEWAY_CONFIG, then $XDG_CONFIG_HOME/studio-gateway/gateway.yaml
// (falling back to ~/.config when XDG_CONFIG_HOME is unset).
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}

	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "studio-gateway", "gateway.yaml")
}

// Write saves cfg as YAML to path, creating parent directories. An existing
// file is left alone unless overwrite is set.
func Write(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// The file may hold a JWT secret.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.HTTPAddr); err != nil {
		return fmt.Errorf("server.http_addr %q: %w", c.Server.HTTPAddr, err)
	}

	if c.Studio.HandshakeTimeout <= 0 {
		return fmt.Errorf("studio.handshake_timeout must be positive")
	}
	if c.Studio.KeepaliveInterval < 0 {
		return fmt.Errorf("studio.keepalive_interval must not be negative")
	}
	if c.Studio.MaxFrameBytes <= 0 {
		return fmt.Errorf("studio.max_frame_bytes must be positive")
	}

	if c.Studio.Poll.Enabled {
		if c.Studio.Poll.Wait <= 0 {
			return fmt.Errorf("studio.poll.wait must be positive")
		}
		if c.Studio.Poll.IdleTimeout <= c.Studio.Poll.Wait {
			return fmt.Errorf("studio.poll.idle_timeout must be longer than studio.poll.wait")
		}
	}

	if c.MCP.RequireAuth && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when mcp.require_auth is true")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"studio.handshake_timeout", cfg.Studio.HandshakeTimeoutRaw, &cfg.Studio.HandshakeTimeout},
		{"studio.keepalive_interval", cfg.Studio.KeepaliveIntervalRaw, &cfg.Studio.KeepaliveInterval},
		{"studio.poll.wait", cfg.Studio.Poll.WaitRaw, &cfg.Studio.Poll.Wait},
		{"studio.poll.idle_timeout", cfg.Studio.Poll.IdleTimeoutRaw, &cfg.Studio.Poll.IdleTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
