// Package app wires configuration, storage, clients, and services into a
// single core shared by every ledgersync subcommand.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/finvault/ledgersync/internal/clients/marketdata"
	"github.com/finvault/ledgersync/internal/clients/teller"
	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/interfaces"
	"github.com/finvault/ledgersync/internal/services/export"
	"github.com/finvault/ledgersync/internal/services/history"
	"github.com/finvault/ledgersync/internal/services/simulate"
	syncsvc "github.com/finvault/ledgersync/internal/services/sync"
	"github.com/finvault/ledgersync/internal/storage"
)

// App holds all initialized clients and services. It is the shared core
// behind every cmd/ledgersync subcommand.
type App struct {
	Config            *common.Config
	Logger            *common.Logger
	Storage           interfaces.StorageManager
	TellerClient      interfaces.LedgerClient
	MarketDataClient  interfaces.MarketDataClient
	SyncService       interfaces.SyncService
	HistoryService    interfaces.HistoryService
	ExportService     interfaces.ExportService
	SimulationService interfaces.SimulationService
	StartupTime       time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes config, logging, storage, clients, and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	// Get binary directory for self-contained operation
	binDir := getBinaryDir()

	// Load configuration - check provided path, LEDGERSYNC_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("LEDGERSYNC_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "ledgersync.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/ledgersync.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage paths to binary directory
	if config.Storage.DatabasePath != "" && !filepath.IsAbs(config.Storage.DatabasePath) {
		config.Storage.DatabasePath = filepath.Join(binDir, config.Storage.DatabasePath)
	}
	if config.Storage.ExportPath != "" && !filepath.IsAbs(config.Storage.ExportPath) {
		config.Storage.ExportPath = filepath.Join(binDir, config.Storage.ExportPath)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	tellerCfg := config.Clients.Teller
	if tellerCfg.AccessToken == "" {
		logger.Warn().Msg("Teller access token not configured - sync will be unavailable")
	}

	tellerOpts := []teller.ClientOption{
		teller.WithBaseURL(tellerCfg.BaseURL),
		teller.WithLogger(logger),
		teller.WithRateLimit(tellerCfg.RateLimit),
		teller.WithTimeout(tellerCfg.GetTimeout()),
	}
	if tellerCfg.CertFile != "" && tellerCfg.KeyFile != "" {
		certOpt, err := teller.WithClientCertificate(tellerCfg.CertFile, tellerCfg.KeyFile)
		if err != nil {
			storageManager.Close()
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tellerOpts = append(tellerOpts, certOpt)
	}
	tellerClient := teller.NewClient(tellerCfg.AccessToken, tellerOpts...)

	fetcher := teller.NewFetcher(tellerClient,
		teller.WithPageSize(tellerCfg.PageSize),
		teller.WithFetcherLogger(logger),
	)

	marketCfg := config.Clients.MarketData
	marketClient := marketdata.NewClient(marketCfg.APIKey,
		marketdata.WithBaseURL(marketCfg.BaseURL),
		marketdata.WithLogger(logger),
		marketdata.WithRateLimit(marketCfg.RateLimit),
		marketdata.WithTimeout(marketCfg.GetTimeout()),
	)

	ledger := storageManager.Ledger()
	syncService := syncsvc.NewService(ledger, tellerClient, fetcher, logger,
		syncsvc.WithFullSyncAge(config.FullSyncAge()))
	historyService := history.NewService(ledger, logger)
	exportService := export.NewService(storageManager, historyService, logger)
	simulationService := simulate.NewService(ledger, marketClient, historyService, logger)

	app := &App{
		Config:            config,
		Logger:            logger,
		Storage:           storageManager,
		TellerClient:      tellerClient,
		MarketDataClient:  marketClient,
		SyncService:       syncService,
		HistoryService:    historyService,
		ExportService:     exportService,
		SimulationService: simulationService,
		StartupTime:       startupStart,
	}

	logger.Info().
		Str("environment", config.Environment).
		Str("database", config.Storage.DatabasePath).
		Str("startup_time", time.Since(startupStart).String()).
		Msg("Application initialized")

	return app, nil
}

// Close releases storage resources.
func (a *App) Close() error {
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
