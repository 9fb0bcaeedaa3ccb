package interfaces

import (
	"context"

	"github.com/finvault/ledgersync/internal/models"
)

// SyncService orchestrates sync runs against the ledger store.
// Not re-entrant: one run at a time per store.
type SyncService interface {
	Run(ctx context.Context, forceFull bool) (*models.SyncStats, error)
}

// HistoryService reconstructs daily balances from the replica.
type HistoryService interface {
	// Reconstruct produces one record per (open account, calendar day)
	// across the observed date range, newest day first. An empty result
	// means insufficient data, never a zero balance.
	Reconstruct(ctx context.Context) ([]models.DailyBalance, error)

	// Pivot folds reconstructed records into one row per day with a
	// portfolio total and day-over-day change, newest first.
	Pivot(balances []models.DailyBalance) []models.PortfolioDay
}

// ExportService writes replica data and balance history to files.
type ExportService interface {
	ExportTransactionsCSV(ctx context.Context) (string, error)
	ExportAccountsCSV(ctx context.Context) (string, error)
	ExportBalanceHistoryCSV(ctx context.Context) (string, error)
	ExportBalanceChart(ctx context.Context) (string, error)
}

// SimulationService replays matched transfers into a benchmark position.
type SimulationService interface {
	Run(ctx context.Context, symbol, pattern string) (*models.SimulationResult, error)
}
