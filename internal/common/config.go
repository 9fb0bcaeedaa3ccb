// Package common provides shared utilities for ledgersync
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for ledgersync
type Config struct {
	Environment string         `toml:"environment"`
	Storage     StorageConfig  `toml:"storage"`
	Clients     ClientsConfig  `toml:"clients"`
	Sync        SyncConfig     `toml:"sync"`
	Simulate    SimulateConfig `toml:"simulate"`
	Logging     LoggingConfig  `toml:"logging"`
}

// StorageConfig holds paths for the two storage areas.
type StorageConfig struct {
	DatabasePath string `toml:"database_path"` // SQLite ledger replica
	ExportPath   string `toml:"export_path"`   // CSV / chart output directory
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Teller     TellerConfig     `toml:"teller"`
	MarketData MarketDataConfig `toml:"marketdata"`
}

// TellerConfig holds remote ledger source configuration
type TellerConfig struct {
	BaseURL     string `toml:"base_url"`
	AccessToken string `toml:"access_token"`
	CertFile    string `toml:"cert_file"` // client certificate for mTLS, optional
	KeyFile     string `toml:"key_file"`
	RateLimit   int    `toml:"rate_limit"`
	Timeout     string `toml:"timeout"`
	PageSize    int    `toml:"page_size"`
}

// GetTimeout parses and returns the timeout duration
func (c *TellerConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// MarketDataConfig holds price API configuration
type MarketDataConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *MarketDataConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SyncConfig holds sync engine tuning.
type SyncConfig struct {
	FullSyncAfterDays int `toml:"full_sync_after_days"` // incremental promoted to full past this age
}

// SimulateConfig holds benchmark simulation settings.
type SimulateConfig struct {
	TransferPattern string `toml:"transfer_pattern"` // case-insensitive description match
	BenchmarkSymbol string `toml:"benchmark_symbol"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Format   string   `toml:"format"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			DatabasePath: "data/ledger.db",
			ExportPath:   "exports",
		},
		Clients: ClientsConfig{
			Teller: TellerConfig{
				BaseURL:   "https://api.teller.io",
				RateLimit: 5,
				Timeout:   "30s",
				PageSize:  250,
			},
			MarketData: MarketDataConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Sync: SyncConfig{
			FullSyncAfterDays: 7,
		},
		Simulate: SimulateConfig{
			TransferPattern: "robinhood",
			BenchmarkSymbol: "SPY.US",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"console"},
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LEDGERSYNC_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("LEDGERSYNC_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("LEDGERSYNC_DATA_PATH"); path != "" {
		config.Storage.DatabasePath = filepath.Join(path, "ledger.db")
		config.Storage.ExportPath = filepath.Join(path, "exports")
	}

	if v := os.Getenv("TELLER_ACCESS_TOKEN"); v != "" {
		config.Clients.Teller.AccessToken = v
	}
	if v := os.Getenv("TELLER_BASE_URL"); v != "" {
		config.Clients.Teller.BaseURL = v
	}
	if v := os.Getenv("TELLER_CERT_FILE"); v != "" {
		config.Clients.Teller.CertFile = v
	}
	if v := os.Getenv("TELLER_KEY_FILE"); v != "" {
		config.Clients.Teller.KeyFile = v
	}
	if v := os.Getenv("MARKETDATA_API_KEY"); v != "" {
		config.Clients.MarketData.APIKey = v
	}

	if v := os.Getenv("LEDGERSYNC_FULL_SYNC_AFTER_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Sync.FullSyncAfterDays = n
		}
	}
}

// FullSyncAge returns the age past which an incremental sync is promoted to full.
func (c *Config) FullSyncAge() time.Duration {
	days := c.Sync.FullSyncAfterDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
