package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"factsheet/internal/logging"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "factsheet.yaml"

// Config holds all factsheet configuration.
type Config struct {
	Portal  PortalConfig  `yaml:"portal"`
	Browser BrowserConfig `yaml:"browser"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// PortalConfig describes the eHRMS public report page.
type PortalConfig struct {
	URL               string `yaml:"url"`
	DialogTitle       string `yaml:"dialog_title"`
	ParentLabel       string `yaml:"parent_label"`
	OrganisationLabel string `yaml:"organisation_label"`
}

// BrowserConfig configures the Chrome instance driven by rod.
type BrowserConfig struct {
	Bin               string   `yaml:"bin"`          // empty: rod downloads/locates a browser
	DebuggerURL       string   `yaml:"debugger_url"` // connect instead of launching
	Headless          bool     `yaml:"headless"`
	Flags             []string `yaml:"flags"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
}

// ScrapeConfig configures job execution.
type ScrapeConfig struct {
	DefaultWait   string `yaml:"default_wait"`
	MinOptions    int    `yaml:"min_options"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	OutputDir     string `yaml:"output_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StoreConfig configures the scrape history database.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			URL:               "https://ehrms.upsdc.gov.in/ReportSummary/PublicReports/EmployeeFactSheet",
			DialogTitle:       "Manav Sampada Reports",
			ParentLabel:       "Parent :",
			OrganisationLabel: "Organisation :",
		},
		Browser: BrowserConfig{
			Headless: true,
			Flags: []string{
				"no-sandbox",
				"disable-dev-shm-usage",
				"disable-gpu",
			},
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: "30s",
		},
		Scrape: ScrapeConfig{
			DefaultWait:   "25s",
			MinOptions:    2,
			MaxConcurrent: 2,
			OutputDir:     ".",
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     "15s",
			WriteTimeout:    "180s",
			ShutdownTimeout: "10s",
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    "data/factsheet.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("FACTSHEET_PORTAL_URL"); url != "" {
		c.Portal.URL = url
	}
	if bin := os.Getenv("FACTSHEET_CHROME_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if url := os.Getenv("FACTSHEET_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if addr := os.Getenv("FACTSHEET_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("FACTSHEET_DB"); path != "" {
		c.Store.Path = path
		c.Store.Enabled = true
	}
	if level := os.Getenv("FACTSHEET_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Portal.URL == "" {
		return fmt.Errorf("portal url not configured")
	}
	if c.Scrape.MaxConcurrent <= 0 {
		return fmt.Errorf("scrape.max_concurrent must be positive, got %d", c.Scrape.MaxConcurrent)
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store enabled without a path")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetNavigationTimeout returns the page navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// GetDefaultWait returns the wait budget for jobs that do not set one.
func (c *Config) GetDefaultWait() time.Duration {
	return parseDuration(c.Scrape.DefaultWait, 25*time.Second)
}

// GetReadTimeout returns the HTTP server read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the HTTP server write timeout. Scrapes answer
// synchronously, so it must exceed the longest wait budget.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 180*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}
