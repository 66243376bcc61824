// ABOUTME: Configuration loading and parsing for lavoro-chat
// ABOUTME: Supports YAML or TOML files with environment variable expansion, duration parsing and defaults

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigEnvVar overrides the config file location.
const ConfigEnvVar = "LAVORO_CHAT_CONFIG"

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config represents the complete lavoro-chat configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Timeouts TimeoutsConfig `yaml:"timeouts" toml:"timeouts"`
	Realtime RealtimeConfig `yaml:"realtime" toml:"realtime"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the chat server endpoints
type ServerConfig struct {
	APIURL    string `yaml:"api_url" toml:"api_url"`
	SocketURL string `yaml:"socket_url" toml:"socket_url"` // defaults to api_url
	// SocketPath overrides the default /socket.io/ handshake path.
	SocketPath   string            `yaml:"socket_path" toml:"socket_path"`
	CustomHeader map[string]string `yaml:"custom_header" toml:"custom_header"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// StorageConfig selects where conversation snapshots are persisted
type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// TimeoutsConfig holds REST timeouts
type TimeoutsConfig struct {
	Request time.Duration `yaml:"-" toml:"-"`
	Upload  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RequestRaw string `yaml:"request" toml:"request"`
	UploadRaw  string `yaml:"upload" toml:"upload"`
}

// RealtimeConfig holds socket reconnect and buffering settings
type RealtimeConfig struct {
	ReconnectInitial time.Duration `yaml:"-" toml:"-"`
	ReconnectMax     time.Duration `yaml:"-" toml:"-"`
	DedupeTTL        time.Duration `yaml:"-" toml:"-"`
	QueueSize        int           `yaml:"queue_size" toml:"queue_size"`

	ReconnectInitialRaw string `yaml:"reconnect_initial" toml:"reconnect_initial"`
	ReconnectMaxRaw     string `yaml:"reconnect_max" toml:"reconnect_max"`
	DedupeTTLRaw        string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// CacheConfig holds sender cache settings
type CacheConfig struct {
	// SenderCacheSize caps the sender cache; 0 leaves it unbounded.
	SenderCacheSize int `yaml:"sender_cache_size" toml:"sender_cache_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration for a local development server.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{APIURL: "http://localhost:3000"},
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads path, or returns Default() when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Path returns the config file location.
// Priority: LAVORO_CHAT_CONFIG env var > XDG_CONFIG_HOME/lavoro/chat.yaml > ~/.config/lavoro/chat.yaml
func Path() string {
	if envPath := os.Getenv(ConfigEnvVar); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "lavoro", "chat.yaml")
}

// DataPath returns the default SQLite location.
// Priority: XDG_DATA_HOME/lavoro > ~/.local/share/lavoro
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.db"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "lavoro", "chat.db")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.SocketURL == "" {
		cfg.Server.SocketURL = cfg.Server.APIURL
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.Path == "" {
		cfg.Storage.Path = DataPath()
	}
	if cfg.Timeouts.Request == 0 {
		cfg.Timeouts.Request = 15 * time.Second
	}
	if cfg.Timeouts.Upload == 0 {
		cfg.Timeouts.Upload = 30 * time.Second
	}
	if cfg.Realtime.ReconnectInitial == 0 {
		cfg.Realtime.ReconnectInitial = 500 * time.Millisecond
	}
	if cfg.Realtime.ReconnectMax == 0 {
		cfg.Realtime.ReconnectMax = 30 * time.Second
	}
	if cfg.Realtime.DedupeTTL == 0 {
		cfg.Realtime.DedupeTTL = 10 * time.Minute
	}
	if cfg.Realtime.QueueSize == 0 {
		cfg.Realtime.QueueSize = 256
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.APIURL == "" {
		return fmt.Errorf("server.api_url is required")
	}
	for name, raw := range map[string]string{"server.api_url": c.Server.APIURL, "server.socket_url": c.Server.SocketURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%s %q is not an absolute URL", name, raw)
		}
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Storage.Driver)
	}

	if c.Realtime.ReconnectMax < c.Realtime.ReconnectInitial {
		return fmt.Errorf("realtime.reconnect_max must not be less than realtime.reconnect_initial")
	}
	if c.Realtime.QueueSize < 0 {
		return fmt.Errorf("realtime.queue_size must not be negative")
	}
	if c.Cache.SenderCacheSize < 0 {
		return fmt.Errorf("cache.sender_cache_size must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
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
		{"timeouts.request", cfg.Timeouts.RequestRaw, &cfg.Timeouts.Request},
		{"timeouts.upload", cfg.Timeouts.UploadRaw, &cfg.Timeouts.Upload},
		{"realtime.reconnect_initial", cfg.Realtime.ReconnectInitialRaw, &cfg.Realtime.ReconnectInitial},
		{"realtime.reconnect_max", cfg.Realtime.ReconnectMaxRaw, &cfg.Realtime.ReconnectMax},
		{"realtime.dedupe_ttl", cfg.Realtime.DedupeTTLRaw, &cfg.Realtime.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}

	return nil
}
