package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "xmpplink"

// DefaultPort is the client-to-server port used when an account leaves it unset.
const DefaultPort = 5222

// Config represents the main application configuration
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Logging    LoggingConfig    `toml:"logging"`
	Connection ConnectionConfig `toml:"connection"`
	Storage    StorageConfig    `toml:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	DataDir string `toml:"data_dir"`

	// AutoRoster requests the roster as soon as a session is connected
	AutoRoster bool `toml:"auto_roster"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Console bool   `toml:"console"`
}

// ConnectionConfig contains settings for the session pump
type ConnectionConfig struct {
	// PumpTimeoutMS bounds a single wait for network events
	PumpTimeoutMS int `toml:"pump_timeout_ms"`

	DialTimeoutSeconds int `toml:"dial_timeout_seconds"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Journal records connection state transitions per account
	Journal bool `toml:"journal"`
}

// Account represents an XMPP account configuration
type Account struct {
	JID      string `toml:"jid"`
	Password string `toml:"password"`
	Server   string `toml:"server"`
	Port     int    `toml:"port"`
	Resource string `toml:"resource"`
}

// Address returns the JID to connect with, including the resource if set.
func (a Account) Address() string {
	if a.Resource == "" || strings.Contains(a.JID, "/") {
		return a.JID
	}
	return a.JID + "/" + a.Resource
}

// AccountsConfig contains all account configurations
type AccountsConfig struct {
	Accounts []Account `toml:"accounts"`
}

// Find returns the account with the given bare JID.
func (c *AccountsConfig) Find(jid string) (*Account, bool) {
	for i := range c.Accounts {
		if c.Accounts[i].JID == jid {
			return &c.Accounts[i], true
		}
	}
	return nil, false
}

// Add appends acc. The JID must not be configured already.
func (c *AccountsConfig) Add(acc Account) error {
	if acc.JID == "" {
		return fmt.Errorf("account: missing jid")
	}
	if _, ok := c.Find(acc.JID); ok {
		return fmt.Errorf("account %s already exists", acc.JID)
	}
	if err := acc.normalize(); err != nil {
		return err
	}
	c.Accounts = append(c.Accounts, acc)
	return nil
}

// Remove drops the account with the given JID and reports whether it was
// configured.
func (c *AccountsConfig) Remove(jid string) bool {
	for i := range c.Accounts {
		if c.Accounts[i].JID == jid {
			c.Accounts = append(c.Accounts[:i], c.Accounts[i+1:]...)
			return true
		}
	}
	return false
}

func (a *Account) normalize() error {
	if a.Port == 0 {
		a.Port = DefaultPort
	}
	if a.Port < 0 || a.Port > 65535 {
		return fmt.Errorf("account %s: port %d out of range", a.JID, a.Port)
	}
	return nil
}

// Paths holds the XDG-compliant paths for the application
type Paths struct {
	ConfigDir string
	DataDir   string
}

// PumpTimeout returns the pump wait as a duration.
func (c *Config) PumpTimeout() time.Duration {
	return time.Duration(c.Connection.PumpTimeoutMS) * time.Millisecond
}

// DialTimeout returns the dial timeout as a duration.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Connection.DialTimeoutSeconds) * time.Second
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			AutoRoster: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Connection: ConnectionConfig{
			PumpTimeoutMS:      1000,
			DialTimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			Journal: true,
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
	return &Paths{
		ConfigDir: filepath.Join(configDir, appName),
		DataDir:   filepath.Join(dataDir, appName),
	}, nil
}

func xdgDir(env, fallback string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
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
	for _, dir := range []string{p.ConfigDir, p.DataDir} {
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
	return LoadFile(filepath.Join(paths.ConfigDir, "config.toml"), paths.DataDir)
}

// LoadFile reads a config file. A missing file yields the defaults. Relative
// data paths are filled in from dataDir.
func LoadFile(path, dataDir string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if cfg.General.DataDir == "" {
		cfg.General.DataDir = dataDir
	} else {
		cfg.General.DataDir = expandPath(cfg.General.DataDir)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.General.DataDir, appName+".log")
	} else {
		cfg.Logging.File = expandPath(cfg.Logging.File)
	}

	if cfg.Connection.PumpTimeoutMS <= 0 {
		cfg.Connection.PumpTimeoutMS = DefaultConfig().Connection.PumpTimeoutMS
	}
	if cfg.Connection.DialTimeoutSeconds <= 0 {
		cfg.Connection.DialTimeoutSeconds = DefaultConfig().Connection.DialTimeoutSeconds
	}

	return cfg, nil
}

// LoadAccounts loads account configurations
func LoadAccounts() (*AccountsConfig, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}
	return LoadAccountsFile(filepath.Join(paths.ConfigDir, "accounts.toml"))
}

// LoadAccountsFile reads an accounts file. A missing file yields no accounts.
func LoadAccountsFile(path string) (*AccountsConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &AccountsConfig{Accounts: []Account{}}, nil
	}

	var accounts AccountsConfig
	if _, err := toml.DecodeFile(path, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	for i := range accounts.Accounts {
		if accounts.Accounts[i].JID == "" {
			return nil, fmt.Errorf("account %d: missing jid", i+1)
		}
		if err := accounts.Accounts[i].normalize(); err != nil {
			return nil, err
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
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}
	return writeTOML(filepath.Join(paths.ConfigDir, "config.toml"), cfg)
}

// SaveAccounts saves account configurations
func SaveAccounts(accounts *AccountsConfig) error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}
	return writeTOML(filepath.Join(paths.ConfigDir, "accounts.toml"), accounts)
}

func writeTOML(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
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
