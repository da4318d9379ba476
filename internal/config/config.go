// Package config provides configuration management for the gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Mode selects the execution strategy for every exchange-facing component.
// Resolved once at startup and injected; never read from ambient state.
type Mode string

const (
	ModeLive Mode = "live"
	ModeMock Mode = "mock"
)

// Config holds all application configuration.
type Config struct {
	Mode     Mode           `mapstructure:"mode"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Security SecurityConfig `mapstructure:"security"`
}

// ExchangeConfig holds exchange endpoint configuration.
type ExchangeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	StatusTimeout  time.Duration `mapstructure:"status_timeout"`
	OrderTimeout   time.Duration `mapstructure:"order_timeout"`
	PaymentTimeout time.Duration `mapstructure:"payment_timeout"`
	UploadTimeout  time.Duration `mapstructure:"upload_timeout"`
}

// DatabaseConfig holds persistence configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig holds the HTTP callback surface configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// JobsConfig holds reconciliation job configuration. Batch sizes and polling
// order are configurable because the exchange's rate limits are not published.
type JobsConfig struct {
	SessionRefreshInterval time.Duration `mapstructure:"session_refresh_interval"`
	OrderPollInterval      time.Duration `mapstructure:"order_poll_interval"`
	MandatePollInterval    time.Duration `mapstructure:"mandate_poll_interval"`
	AllotmentSyncInterval  time.Duration `mapstructure:"allotment_sync_interval"`
	SchemeSyncInterval     time.Duration `mapstructure:"scheme_sync_interval"`
	OrderPollBatch         int           `mapstructure:"order_poll_batch"`
	MandatePollBatch       int           `mapstructure:"mandate_poll_batch"`
}

// SecurityConfig holds credential-encryption configuration.
type SecurityConfig struct {
	// MasterKey derives the AES key protecting stored credentials. Overridable
	// via STARMF_MASTER_KEY; must not be empty in live mode.
	MasterKey string `mapstructure:"master_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/starmf-gateway"
	}
	return filepath.Join(home, ".config", "starmf-gateway")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("mode", "mock")
	v.SetDefault("exchange.base_url", "https://bsestarmfdemo.bseindia.com")
	v.SetDefault("exchange.status_timeout", 10*time.Second)
	v.SetDefault("exchange.order_timeout", 30*time.Second)
	v.SetDefault("exchange.payment_timeout", 60*time.Second)
	v.SetDefault("exchange.upload_timeout", 120*time.Second)
	v.SetDefault("database.path", filepath.Join(configDir, "gateway.db"))
	v.SetDefault("server.addr", ":8085")
	v.SetDefault("jobs.session_refresh_interval", 5*time.Minute)
	v.SetDefault("jobs.order_poll_interval", 15*time.Minute)
	v.SetDefault("jobs.mandate_poll_interval", 30*time.Minute)
	v.SetDefault("jobs.allotment_sync_interval", 24*time.Hour)
	v.SetDefault("jobs.scheme_sync_interval", 168*time.Hour)
	v.SetDefault("jobs.order_poll_batch", 50)
	v.SetDefault("jobs.mandate_poll_batch", 50)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STARMF_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("STARMF_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("STARMF_MASTER_KEY"); v != "" {
		cfg.Security.MasterKey = v
	}
	if v := os.Getenv("STARMF_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Mode != ModeLive && c.Mode != ModeMock {
		return fmt.Errorf("invalid mode: %s (must be 'live' or 'mock')", c.Mode)
	}
	if c.Mode == ModeLive && c.Security.MasterKey == "" {
		return fmt.Errorf("security.master_key is required in live mode")
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url must not be empty")
	}
	if c.Jobs.OrderPollBatch <= 0 || c.Jobs.MandatePollBatch <= 0 {
		return fmt.Errorf("job batch sizes must be positive")
	}
	return nil
}

// IsMock returns true if the gateway runs against the mock exchange.
func (c *Config) IsMock() bool {
	return c.Mode == ModeMock
}
