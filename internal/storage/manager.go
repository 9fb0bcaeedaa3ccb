// Package storage provides the top-level StorageManager coordinating the
// SQLite ledger replica and the export file area.
package storage

import (
	"fmt"

	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/interfaces"
	"github.com/finvault/ledgersync/internal/storage/exportfs"
	"github.com/finvault/ledgersync/internal/storage/sqlite"
)

// Manager implements interfaces.StorageManager.
type Manager struct {
	ledger  *sqlite.Store
	exports *exportfs.Store
	logger  *common.Logger
}

// NewManager opens the ledger database and the export area.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ledger, err := sqlite.NewStore(logger, config.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %w", err)
	}

	exports, err := exportfs.NewStore(logger, config.Storage.ExportPath)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("failed to open export store: %w", err)
	}

	logger.Info().
		Str("database", config.Storage.DatabasePath).
		Str("exports", config.Storage.ExportPath).
		Msg("Storage manager initialized")

	return &Manager{ledger: ledger, exports: exports, logger: logger}, nil
}

func (m *Manager) Ledger() interfaces.LedgerStore {
	return m.ledger
}

func (m *Manager) ExportPath() string {
	return m.exports.BasePath()
}

func (m *Manager) WriteExport(key string, data []byte) (string, error) {
	return m.exports.WriteRaw(key, data)
}

func (m *Manager) Close() error {
	return m.ledger.Close()
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
