// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/duahaudo/ai-sidebar-local/internal/ollama"
	"github.com/duahaudo/ai-sidebar-local/internal/storage"
	"github.com/duahaudo/ai-sidebar-local/internal/util"
)

// API sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Themes.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Panel width bounds, in columns. Resize requests outside the range clamp.
const (
	MinSidebarWidth     = 250
	MaxSidebarWidth     = 600
	DefaultSidebarWidth = 400
)

// DefaultListenAddr is where the relay daemon accepts channel connections.
const DefaultListenAddr = "127.0.0.1:11435"

// =============================================================================
// CONFIG
// =============================================================================

// Config is the full settings tree. Zero values are filled by SetDefaults.
type Config struct {
	Model        string `toml:"model"`
	APIURL       string `toml:"api_url"`
	APISource    string `toml:"api_source"` // local | remote
	Theme        string `toml:"theme"`      // light | dark
	SidebarWidth int    `toml:"sidebar_width"`

	Relay   RelayConfig   `toml:"relay"`
	Storage StorageConfig `toml:"storage"`
}

// RelayConfig tunes the streaming daemon.
type RelayConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	OriginRequired bool     `toml:"origin_required"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// StorageConfig selects the conversation persistence driver.
type StorageConfig struct {
	Driver string `toml:"driver"` // memory | file | sqlite | redis
	DSN    string `toml:"dsn"`
}

// Default returns the out-of-the-box configuration.
func Default() *Config {
	return &Config{
		Model:        ollama.DefaultModel,
		APIURL:       ollama.DefaultBaseURL,
		APISource:    SourceLocal,
		Theme:        ThemeDark,
		SidebarWidth: DefaultSidebarWidth,
		Relay: RelayConfig{
			ListenAddr: DefaultListenAddr,
		},
		Storage: StorageConfig{
			Driver: storage.DriverFile,
		},
	}
}

// EffectiveAPIURL resolves the backend URL: the local source always means
// the default local backend, regardless of api_url.
func (c *Config) EffectiveAPIURL() string {
	if c.APISource == SourceLocal {
		return ollama.DefaultBaseURL
	}
	return strings.TrimSuffix(c.APIURL, "/")
}

// SetDefaults fills blanks left by a partial config file and clamps the
// panel width into range.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.APIURL == "" {
		c.APIURL = d.APIURL
	}
	if c.APISource == "" {
		c.APISource = d.APISource
	}
	if c.Theme == "" {
		c.Theme = d.Theme
	}
	if c.SidebarWidth == 0 {
		c.SidebarWidth = d.SidebarWidth
	}
	c.SidebarWidth = ClampWidth(c.SidebarWidth)
	if c.Relay.ListenAddr == "" {
		c.Relay.ListenAddr = d.Relay.ListenAddr
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.DSN == "" && c.Storage.Driver == storage.DriverFile {
		if dir, err := DataDir(); err == nil {
			c.Storage.DSN = filepath.Join(dir, "conversations")
		}
	}
}

// ClampWidth forces a width into the allowed panel range.
func ClampWidth(w int) int {
	if w < MinSidebarWidth {
		return MinSidebarWidth
	}
	if w > MaxSidebarWidth {
		return MaxSidebarWidth
	}
	return w
}

// Validate rejects values the rest of the system cannot act on.
func (c *Config) Validate() error {
	switch c.APISource {
	case SourceLocal, SourceRemote:
	default:
		return fmt.Errorf("invalid api_source: %q (want %q or %q)", c.APISource, SourceLocal, SourceRemote)
	}
	if c.APISource == SourceRemote && strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("api_source %q requires api_url", SourceRemote)
	}

	switch c.Theme {
	case ThemeLight, ThemeDark:
	default:
		return fmt.Errorf("invalid theme: %q (want %q or %q)", c.Theme, ThemeLight, ThemeDark)
	}

	switch c.Storage.Driver {
	case storage.DriverMemory, storage.DriverFile, storage.DriverSQLite, storage.DriverRedis:
	default:
		return fmt.Errorf("invalid storage driver: %q", c.Storage.Driver)
	}

	if strings.TrimSpace(c.Relay.ListenAddr) == "" {
		return fmt.Errorf("relay listen_addr must not be empty")
	}
	return nil
}

// ApplyEnvOverrides lets the environment win over the config file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AISIDEBAR_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("AISIDEBAR_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("AISIDEBAR_API_SOURCE"); v != "" {
		c.APISource = v
	}
	if v := os.Getenv("AISIDEBAR_THEME"); v != "" {
		c.Theme = v
	}
	if v := os.Getenv("AISIDEBAR_SIDEBAR_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SidebarWidth = n
		}
	}
	if v := os.Getenv("AISIDEBAR_LISTEN"); v != "" {
		c.Relay.ListenAddr = v
	}
	if v := os.Getenv("AISIDEBAR_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("AISIDEBAR_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns ~/.aisidebar, honoring the AISIDEBAR_HOME override.
func ConfigDir() (string, error) {
	if v := os.Getenv("AISIDEBAR_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".aisidebar"), nil
}

// ConfigPath returns the TOML settings file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the directory for persisted conversations.
func DataDir() (string, error) {
	return ConfigDir()
}

// EnsureConfigDir creates the settings directory with owner-only access.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the settings file, applies environment overrides, fills
// defaults, and validates. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath is Load against an explicit file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the settings to the default path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the settings atomically with owner-only permissions.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# ai-sidebar-local configuration file")
	fmt.Fprintln(&buf, "# Edit with care; the daemon reloads it live.")
	fmt.Fprintln(&buf, "")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
