// Package config handles configuration loading for studio-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Every field has a default, so a missing file is not an error for
// LoadOrDefault and a partial file only overrides what it names.
//
// # Configuration File
//
// Locations (first match wins):
//
//  1. The --config flag
//  2. Path from STUDIO_GATEWAY_CONFIG
//  3. $XDG_CONFIG_HOME/studio-gateway/gateway.yaml (~/.config when unset)
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${STUDIO_GATEWAY_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:44755"   # studios, MCP clients and the HTTP API
//
//	studio:
//	  handshake_timeout: "10s"       # time allowed for the registration frame
//	  keepalive_interval: "30s"      # WebSocket ping period, 0 disables
//	  max_frame_bytes: 16777216
//	  poll:
//	    enabled: true
//	    wait: "15s"                  # long-poll hold time
//	    idle_timeout: "60s"          # evict poll studios that stop polling
//
//	mcp:
//	  require_auth: false            # needs auth.jwt_secret
//
//	auth:
//	  jwt_secret: ""
//
//	history:
//	  path: ""                       # sqlite file, empty disables
//
//	logging:
//	  level: "info"                  # debug, info, warn, error
//	  format: "text"                 # text or json
//
// Duration values use time.ParseDuration syntax.
package config
