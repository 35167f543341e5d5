package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config represents the main application configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Logging   LoggingConfig   `toml:"logging"`
	Storage   StorageConfig   `toml:"storage"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Client    ClientConfig    `toml:"client"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	DataDir string `toml:"data_dir" env:"ROSTER_DATA_DIR"`
	// InboxSize is the number of stanzas buffered per account before the
	// transport blocks.
	InboxSize int `toml:"inbox_size" env:"ROSTER_INBOX_SIZE"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level   string `toml:"level" env:"ROSTER_LOG_LEVEL"`
	File    string `toml:"file" env:"ROSTER_LOG_FILE"`
	Console bool   `toml:"console" env:"ROSTER_LOG_CONSOLE"`
	JSON    bool   `toml:"json" env:"ROSTER_LOG_JSON"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// SaveMessages enables/disables the on-disk message log. When disabled
	// timelines only live in memory.
	SaveMessages bool `toml:"save_messages" env:"ROSTER_SAVE_MESSAGES"`

	// Database overrides the sqlite file location (defaults to DataDir/roster.db)
	Database string `toml:"database" env:"ROSTER_DATABASE"`
}

// ReconcileConfig bounds the buffer of modifiers whose target has not been
// seen yet.
type ReconcileConfig struct {
	PendingTTL Duration `toml:"pending_ttl" env:"ROSTER_PENDING_TTL"`
	MaxPending int      `toml:"max_pending" env:"ROSTER_MAX_PENDING"`
}

// ClientConfig describes how we present ourselves to other entities.
type ClientConfig struct {
	Name     string   `toml:"name" env:"ROSTER_CLIENT_NAME"`
	Version  string   `toml:"version" env:"ROSTER_CLIENT_VERSION"`
	OS       string   `toml:"os" env:"ROSTER_CLIENT_OS"`
	CapsNode string   `toml:"caps_node" env:"ROSTER_CAPS_NODE"`
	Features []string `toml:"features"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint; empty disables it.
	Listen string `toml:"listen" env:"ROSTER_METRICS_LISTEN"`
}

// Duration is a time.Duration that decodes from strings like "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for toml and env.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Account represents an XMPP account configuration
type Account struct {
	JID      string `toml:"jid"`
	Password string `toml:"password"`
	Server   string `toml:"server"`
	Port     int    `toml:"port"`
	Priority int    `toml:"priority"`
	Resource string `toml:"resource"`
	Disabled bool   `toml:"disabled"`
}

// AccountsConfig contains all account configurations
type AccountsConfig struct {
	Accounts []Account `toml:"accounts"`
}

// Paths holds the XDG-compliant paths for the application
type Paths struct {
	ConfigDir string
	DataDir   string
	CacheDir  string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:   "",
			InboxSize: 256,
		},
		Logging: LoggingConfig{
			Level:   "info",
			File:    "",
			Console: false,
		},
		Storage: StorageConfig{
			SaveMessages: true,
		},
		Reconcile: ReconcileConfig{
			PendingTTL: Duration{10 * time.Minute},
			MaxPending: 1000,
		},
		Client: ClientConfig{
			Name:     "roster",
			Version:  "0.1.0",
			CapsNode: "https://github.com/meszmate/roster",
		},
	}
}

// GetPaths returns XDG-compliant paths for the application
func GetPaths() (*Paths, error) {
	configDir, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return nil, err
	}
	dataDir, err := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if err != nil {
		return nil, err
	}
	cacheDir, err := xdgDir("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return nil, err
	}

	return &Paths{
		ConfigDir: filepath.Join(configDir, "roster"),
		DataDir:   filepath.Join(dataDir, "roster"),
		CacheDir:  filepath.Join(cacheDir, "roster"),
	}, nil
}

func xdgDir(envVar, fallback string) (string, error) {
	if dir := os.Getenv(envVar); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, fallback), nil
}

// EnsureDirectories creates the necessary directories
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.ConfigDir, p.DataDir, p.CacheDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load loads the configuration from the config file
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}

	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	return LoadFile(filepath.Join(paths.ConfigDir, "config.toml"), paths)
}

// LoadFile loads the configuration at path. A missing file yields the
// defaults. Environment variables override file values.
func LoadFile(path string, paths *Paths) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.General.DataDir == "" {
		cfg.General.DataDir = paths.DataDir
	} else {
		cfg.General.DataDir = expandPath(cfg.General.DataDir)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.General.DataDir, "roster.log")
	} else {
		cfg.Logging.File = expandPath(cfg.Logging.File)
	}

	if cfg.Storage.Database == "" {
		cfg.Storage.Database = filepath.Join(cfg.General.DataDir, "roster.db")
	} else {
		cfg.Storage.Database = expandPath(cfg.Storage.Database)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.General.InboxSize <= 0 {
		return fmt.Errorf("general.inbox_size must be positive, got %d", c.General.InboxSize)
	}
	if c.Reconcile.PendingTTL.Duration < 0 {
		return fmt.Errorf("reconcile.pending_ttl must not be negative")
	}
	if c.Reconcile.MaxPending < 0 {
		return fmt.Errorf("reconcile.max_pending must not be negative")
	}
	return nil
}

// LoadAccounts loads account configurations
func LoadAccounts() (*AccountsConfig, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}
	return LoadAccountsFile(filepath.Join(paths.ConfigDir, "accounts.toml"))
}

// LoadAccountsFile loads account configurations from path.
func LoadAccountsFile(accountsPath string) (*AccountsConfig, error) {
	if _, err := os.Stat(accountsPath); os.IsNotExist(err) {
		return &AccountsConfig{Accounts: []Account{}}, nil
	}

	var accounts AccountsConfig
	if _, err := toml.DecodeFile(accountsPath, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	for i := range accounts.Accounts {
		if accounts.Accounts[i].Port == 0 {
			accounts.Accounts[i].Port = 5222
		}
		if accounts.Accounts[i].Resource == "" {
			accounts.Accounts[i].Resource = "roster"
		}
	}

	return &accounts, nil
}

// Save saves the configuration to the config file
func Save(cfg *Config) error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}

	configPath := filepath.Join(paths.ConfigDir, "config.toml")
	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
