// Package config provides TOML configuration file loading for the client.
// The configuration file lives at ~/.apsession/config.toml by default, but can be
// overridden with the --config flag. Environment variables prefixed with
// APSESSION_ override file values, and CLI flags override both.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	apperrors "github.com/apsession/client/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "APSESSION_"

// Config represents the client configuration.
// Field names use Go camelCase internally but map to snake_case in TOML files
// and upper snake case in the environment via struct tags.
type Config struct {
	// Server is the service address, with or without a ws:// or wss:// scheme.
	Server string `toml:"server" env:"SERVER"`

	// Slot is the player slot name to join.
	Slot string `toml:"slot" env:"SLOT"`

	// Password is the room password, if any.
	Password string `toml:"password" env:"PASSWORD"`

	// Game is the game name announced on connect.
	// Default: Selaco
	Game string `toml:"game" env:"GAME"`

	// ItemsHandling is the items_handling bitmask announced on connect.
	// Default: 2
	ItemsHandling int `toml:"items_handling" env:"ITEMS_HANDLING"`

	// StateFile is where progress is saved. A .msgpack extension selects
	// MessagePack, anything else JSON. Empty disables file snapshots.
	StateFile string `toml:"state_file" env:"STATE_FILE"`

	// Database is the SQLite archive for snapshot slots and connection
	// history. Empty disables the archive.
	Database string `toml:"database" env:"DATABASE"`

	// IdentityFile persists the client identifier across runs. Empty means
	// a fresh identifier for every connection.
	IdentityFile string `toml:"identity_file" env:"IDENTITY_FILE"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level" env:"LOG_LEVEL"`

	// PollIntervalMs bounds the network loop sleep in milliseconds.
	// Default: 10
	PollIntervalMs int `toml:"poll_interval_ms" env:"POLL_INTERVAL_MS"`

	// AutoReconnect makes the CLI reconnect after a dropped connection.
	// The core never reconnects on its own. Default: true
	AutoReconnect bool `toml:"auto_reconnect" env:"AUTO_RECONNECT"`

	// ReconnectDelayMs is the initial reconnect delay in milliseconds.
	// Default: 5000
	ReconnectDelayMs int `toml:"reconnect_delay_ms" env:"RECONNECT_DELAY_MS"`

	// MaxReconnectAttempts caps reconnect attempts; 0 means unlimited.
	// Default: 10
	MaxReconnectAttempts int `toml:"max_reconnect_attempts" env:"MAX_RECONNECT_ATTEMPTS"`

	// EnableDeathLink joins the DeathLink tag group. Default: false
	EnableDeathLink bool `toml:"enable_deathlink" env:"ENABLE_DEATHLINK"`

	// EnableChat allows sending chat. Default: true
	EnableChat bool `toml:"enable_chat" env:"ENABLE_CHAT"`

	// EnableHints allows scouting locations as hints. Default: true
	EnableHints bool `toml:"enable_hints" env:"ENABLE_HINTS"`

	// EnableItemTracking records received items in the store. Default: true
	EnableItemTracking bool `toml:"enable_item_tracking" env:"ENABLE_ITEM_TRACKING"`

	// VerboseLogging logs every received item and checked location.
	VerboseLogging bool `toml:"verbose_logging" env:"VERBOSE_LOGGING"`

	// LogNetworkTraffic logs every frame at debug level.
	LogNetworkTraffic bool `toml:"log_network_traffic" env:"LOG_NETWORK_TRAFFIC"`

	// ChatRatePerSec is the sustained chat rate. Default: 2
	ChatRatePerSec float64 `toml:"chat_rate_per_sec" env:"CHAT_RATE_PER_SEC"`

	// ChatBurst is how many chat lines may be sent back to back. Default: 5
	ChatBurst int `toml:"chat_burst" env:"CHAT_BURST"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Game:                 DefaultGame,
		ItemsHandling:        DefaultItemsHandling,
		LogLevel:             DefaultLogLevel,
		PollIntervalMs:       DefaultPollIntervalMs,
		AutoReconnect:        true,
		ReconnectDelayMs:     DefaultReconnectDelayMs,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		EnableChat:           true,
		EnableHints:          true,
		EnableItemTracking:   true,
		ChatRatePerSec:       DefaultChatRatePerSec,
		ChatBurst:            DefaultChatBurst,
	}
}

// DefaultConfigPath returns the default config file location: ~/.apsession/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".apsession", "config.toml"), nil
}

// Load reads a TOML config file from the given path on top of Default and
// then applies environment overrides.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.apsession/config.toml).
//     A missing default file is not an error.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// load is Load with an injectable environment; nil means the process
// environment.
func load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if defaultPath, err := DefaultConfigPath(); err == nil {
			if _, err := os.Stat(defaultPath); err == nil {
				path = defaultPath
			}
		}
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "config file not found: "+path)
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "failed to parse config file "+path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "parse environment", err)
	}

	return cfg, nil
}

// Validate checks value ranges. It does not require Server or Slot, since
// commands that only read archives never connect.
func (c *Config) Validate() error {
	var problems []string
	if c.PollIntervalMs <= 0 {
		problems = append(problems, "poll_interval_ms must be positive")
	}
	if c.ReconnectDelayMs < 0 {
		problems = append(problems, "reconnect_delay_ms must not be negative")
	}
	if c.MaxReconnectAttempts < 0 {
		problems = append(problems, "max_reconnect_attempts must not be negative")
	}
	if c.ItemsHandling < 0 || c.ItemsHandling > 0b111 {
		problems = append(problems, "items_handling must be between 0 and 7")
	}
	if c.ChatRatePerSec <= 0 {
		problems = append(problems, "chat_rate_per_sec must be positive")
	}
	if c.ChatBurst <= 0 {
		problems = append(problems, "chat_burst must be positive")
	}
	if c.Server != "" {
		if _, err := url.Parse(ServerURI(c.Server)); err != nil {
			problems = append(problems, "server is not a valid address")
		}
	}
	if len(problems) > 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// PollInterval returns PollIntervalMs as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ReconnectDelay returns ReconnectDelayMs as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// ServerURI adds wss:// to an address that has no ws:// or wss:// scheme.
func ServerURI(server string) string {
	if strings.HasPrefix(server, "ws://") || strings.HasPrefix(server, "wss://") {
		return server
	}
	return "wss://" + server
}
