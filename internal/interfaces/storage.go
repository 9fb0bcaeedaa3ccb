package interfaces

import (
	"context"
	"time"

	"github.com/finvault/ledgersync/internal/models"
)

// StorageManager coordinates the storage areas: the relational ledger
// replica and the export file area.
type StorageManager interface {
	Ledger() LedgerStore

	// ExportPath returns the base directory for exported files.
	ExportPath() string

	// WriteExport writes an export file atomically under the export path.
	// Key is sanitized for safe filenames. Returns the full path written.
	WriteExport(key string, data []byte) (string, error)

	Close() error
}

// LedgerStore is the durable replica: institutions, accounts, transactions,
// and sync-run records. All upserts are idempotent under repeated calls with
// the same identity.
type LedgerStore interface {
	// Upserts
	UpsertInstitution(ctx context.Context, inst models.Institution) error
	UpsertAccount(ctx context.Context, account models.Account) error
	UpsertTransaction(ctx context.Context, txn models.Transaction) (models.UpsertResult, error)
	TransactionExists(ctx context.Context, id string) (bool, error)

	// Sync cursor. The cursor date never moves backward; a stale date is a no-op.
	GetAccountSyncState(ctx context.Context, accountID string) (*models.SyncState, error)
	SetAccountSyncState(ctx context.Context, accountID string, date *time.Time, txnID string, syncedAt time.Time) error

	// Sync run lifecycle
	StartSyncRun(ctx context.Context, syncType models.SyncType) (string, error)
	CompleteSyncRun(ctx context.Context, runID string, stats models.SyncStats) error
	FailSyncRun(ctx context.Context, runID string, runErr error) error
	GetLastCompletedRun(ctx context.Context) (*models.SyncRun, error)
	ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)

	// FailStaleRuns marks runs left in the running state by a crashed
	// process as failed. Returns the number of runs closed.
	FailStaleRuns(ctx context.Context) (int, error)

	// Reads for reconstruction and export
	ListOpenAccounts(ctx context.Context) ([]models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListPostedTransactions(ctx context.Context) ([]models.Transaction, error)
	ListAccountTransactions(ctx context.Context, accountID string) ([]models.Transaction, error)

	// TransactionDateRange returns the earliest and latest posted
	// transaction dates, or ok=false when the replica is empty.
	TransactionDateRange(ctx context.Context) (earliest, latest time.Time, ok bool, err error)

	// FindTransfers returns posted outflows whose description matches the
	// pattern case-insensitively, earliest first.
	FindTransfers(ctx context.Context, pattern string) ([]models.Transfer, error)

	Close() error
}
