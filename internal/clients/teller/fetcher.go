package teller

import (
	"context"
	"fmt"

	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/interfaces"
	"github.com/finvault/ledgersync/internal/models"
)

// DefaultPageSize balances API round-trips against response size.
const DefaultPageSize = 250

// Fetcher pages through an account's transaction history using a rolling
// cursor derived from the last transaction collected in the current call.
// The cursor is request-scoped: every FetchAll starts from the newest page.
type Fetcher struct {
	client   interfaces.LedgerClient
	pageSize int
	logger   *common.Logger
}

// FetcherOption configures the fetcher
type FetcherOption func(*Fetcher)

// WithPageSize sets the page size requested from the source
func WithPageSize(size int) FetcherOption {
	return func(f *Fetcher) {
		if size > 0 {
			f.pageSize = size
		}
	}
}

// WithFetcherLogger sets the logger
func WithFetcherLogger(logger *common.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a page fetcher over a ledger client.
func NewFetcher(client interfaces.LedgerClient, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   client,
		pageSize: DefaultPageSize,
		logger:   common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FetchAll retrieves an account's entire posted transaction history,
// most recent first. Pending transactions are dropped unconditionally.
// The stream ends on an empty page, a short page, or a page containing
// only already-seen ids (cursor overlap, e.g. a source that repeats the
// last row of page N as the first row of page N+1).
func (f *Fetcher) FetchAll(ctx context.Context, accountID string) (*interfaces.FetchResult, error) {
	result := &interfaces.FetchResult{}
	seen := make(map[string]bool)
	cursor := ""

	for {
		page, err := f.client.ListTransactions(ctx, accountID, cursor, f.pageSize)
		if err != nil {
			return nil, fmt.Errorf("page fetch after cursor %q: %w", cursor, err)
		}

		result.Skipped = append(result.Skipped, page.Skipped...)

		var fresh []models.Transaction
		for _, txn := range page.Transactions {
			if txn.Status == models.TransactionStatusPending {
				continue
			}
			if seen[txn.ID] {
				continue
			}
			seen[txn.ID] = true
			fresh = append(fresh, txn)
		}

		// Without a fresh transaction the cursor cannot advance: the page
		// was empty, pure overlap, or nothing but pending/invalid records.
		if len(fresh) == 0 {
			break
		}

		result.Transactions = append(result.Transactions, fresh...)
		cursor = fresh[len(fresh)-1].ID

		f.logger.Debug().
			Str("account_id", accountID).
			Int("page", len(fresh)).
			Int("total", len(result.Transactions)).
			Msg("Fetched transaction page")

		if !page.PageComplete {
			break // short page: end of stream
		}
	}

	if len(result.Skipped) > 0 {
		f.logger.Warn().
			Str("account_id", accountID).
			Int("skipped", len(result.Skipped)).
			Msg("Some transaction records failed validation")
	}

	return result, nil
}

// Ensure Fetcher implements PageFetcher
var _ interfaces.PageFetcher = (*Fetcher)(nil)
