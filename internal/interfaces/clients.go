// Package interfaces defines service contracts for ledgersync
package interfaces

import (
	"context"
	"time"

	"github.com/finvault/ledgersync/internal/models"
)

// TransactionPage is one page of transactions from the remote ledger source.
// A page shorter than the requested size signals end of stream.
type TransactionPage struct {
	Transactions []models.Transaction
	Skipped      []SkippedRecord
	PageComplete bool // false when the source returned fewer rows than requested
}

// SkippedRecord is a transaction the fetch dropped because its payload
// failed validation. Skips are part of the fetch contract, not a side effect.
type SkippedRecord struct {
	ID     string
	Reason string
}

// FetchResult is the outcome of paging through an account's full history.
type FetchResult struct {
	Transactions []models.Transaction // most-recent-first, posted only, deduplicated
	Skipped      []SkippedRecord
}

// LedgerClient is the remote ledger source boundary.
type LedgerClient interface {
	// ListAccounts returns all accounts visible to the credential, with
	// balance snapshots attached where derivable.
	ListAccounts(ctx context.Context) ([]models.Account, error)

	// ListTransactions returns one page of transactions, most recent first.
	// fromID is a rolling cursor: the id of the last transaction already
	// collected, or empty for the first page.
	ListTransactions(ctx context.Context, accountID, fromID string, count int) (*TransactionPage, error)

	// Health reports whether the source is reachable.
	Health(ctx context.Context) bool
}

// PageFetcher turns cursor pagination into a whole-history fetch.
type PageFetcher interface {
	// FetchAll pages through an account's entire posted transaction history.
	// The pagination cursor is scoped to this call, never read from storage.
	FetchAll(ctx context.Context, accountID string) (*FetchResult, error)
}

// MarketDataClient provides end-of-day benchmark prices.
type MarketDataClient interface {
	GetDailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]models.DailyClose, error)
}
