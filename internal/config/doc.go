// Package config handles configuration loading for lavoro-chat.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from LAVORO_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/lavoro/chat.yaml
//  3. ~/.config/lavoro/chat.yaml
//
// A missing file is not an error for LoadOrDefault; the defaults target a
// server on http://localhost:3000. Files ending in .toml are read as TOML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${LAVORO_TOKEN}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	realtime:
//	  reconnect_initial: "500ms"
//	  reconnect_max: "30s"
//	  dedupe_ttl: "10m"
package config
