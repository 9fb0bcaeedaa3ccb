// Package sync implements the incremental synchronization engine.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/interfaces"
	"github.com/finvault/ledgersync/internal/models"
)

// DefaultFullSyncAge is how old the last completed run may be before an
// incremental sync is promoted to a full one.
const DefaultFullSyncAge = 7 * 24 * time.Hour

// Service implements SyncService. It is not re-entrant: one run at a time
// per ledger store.
type Service struct {
	store       interfaces.LedgerStore
	client      interfaces.LedgerClient
	fetcher     interfaces.PageFetcher
	logger      *common.Logger
	fullSyncAge time.Duration
}

// Option configures the service
type Option func(*Service)

// WithFullSyncAge overrides the age threshold for promoting to a full sync.
func WithFullSyncAge(age time.Duration) Option {
	return func(s *Service) {
		if age > 0 {
			s.fullSyncAge = age
		}
	}
}

// NewService creates a new sync engine.
func NewService(
	store interfaces.LedgerStore,
	client interfaces.LedgerClient,
	fetcher interfaces.PageFetcher,
	logger *common.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:       store,
		client:      client,
		fetcher:     fetcher,
		logger:      logger,
		fullSyncAge: DefaultFullSyncAge,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// decideSyncType evaluates the sync-type rule once, at run start.
func (s *Service) decideSyncType(ctx context.Context, forceFull bool) (models.SyncType, error) {
	if forceFull {
		return models.SyncTypeFull, nil
	}

	last, err := s.store.GetLastCompletedRun(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read last completed run: %w", err)
	}
	if last == nil || last.CompletedAt == nil {
		s.logger.Info().Msg("No previous completed sync, doing full sync")
		return models.SyncTypeFull, nil
	}
	if age := time.Since(*last.CompletedAt); age > s.fullSyncAge {
		s.logger.Info().Dur("age", age).Msg("Last sync too old, doing full sync")
		return models.SyncTypeFull, nil
	}
	return models.SyncTypeIncremental, nil
}

// Run performs a single sync run. One account's transport failure never
// aborts the run; a store write failure does, leaving prior committed
// accounts untouched and the run marked failed.
func (s *Service) Run(ctx context.Context, forceFull bool) (*models.SyncStats, error) {
	if stale, err := s.store.FailStaleRuns(ctx); err != nil {
		return nil, fmt.Errorf("failed to close stale runs: %w", err)
	} else if stale > 0 {
		s.logger.Warn().Int("count", stale).Msg("Closed stale sync runs from a previous process")
	}

	syncType, err := s.decideSyncType(ctx, forceFull)
	if err != nil {
		return nil, err
	}

	runID, err := s.store.StartSyncRun(ctx, syncType)
	if err != nil {
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}

	s.logger.Info().Str("run_id", runID).Str("type", string(syncType)).Msg("Sync run started")

	runStart := time.Now()
	stats := &models.SyncStats{}

	accounts, err := s.client.ListAccounts(ctx)
	if err != nil {
		// Source unreachable before any account was processed: the whole
		// run fails, prior state stays untouched.
		s.failRun(ctx, runID, err)
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	for _, account := range accounts {
		if err := s.store.UpsertAccount(ctx, account); err != nil {
			s.failRun(ctx, runID, err)
			return nil, err
		}

		if err := s.syncAccount(ctx, account, syncType, runStart, stats); err != nil {
			s.failRun(ctx, runID, err)
			return nil, err
		}
	}

	if err := s.store.CompleteSyncRun(ctx, runID, *stats); err != nil {
		return nil, fmt.Errorf("failed to complete sync run: %w", err)
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("accounts", stats.AccountsSynced).
		Int("new", stats.NewTransactions).
		Int("updated", stats.UpdatedTransactions).
		Int("skipped", stats.SkippedRecords).
		Msg("Sync run completed")

	return stats, nil
}

// syncAccount processes a single account. A fetch (transport) failure is
// absorbed into the stats; a store failure is returned and fails the run.
func (s *Service) syncAccount(
	ctx context.Context,
	account models.Account,
	syncType models.SyncType,
	runStart time.Time,
	stats *models.SyncStats,
) error {
	result, err := s.fetcher.FetchAll(ctx, account.ID)
	if err != nil {
		s.logger.Error().
			Str("account_id", account.ID).
			Str("account", account.Name).
			Err(err).
			Msg("Account fetch failed, continuing with remaining accounts")
		stats.AccountsFailed++
		return nil
	}

	keep := result.Transactions
	if syncType == models.SyncTypeIncremental {
		keep, err = s.filterNew(ctx, account.ID, result.Transactions)
		if err != nil {
			return err
		}
	}

	for _, txn := range keep {
		outcome, err := s.store.UpsertTransaction(ctx, txn)
		if err != nil {
			// No cursor advance for the account in flight.
			return err
		}
		switch outcome {
		case models.UpsertNew:
			stats.NewTransactions++
		case models.UpsertUpdated:
			stats.UpdatedTransactions++
		}
	}

	// Advance the cursor to the latest-dated transaction observed in this
	// fetch. Iterating in source order means a same-date tie keeps the
	// transaction the source itself listed as most recent.
	latest := latestObserved(result.Transactions)
	if latest != nil {
		d := models.Day(latest.Date)
		err = s.store.SetAccountSyncState(ctx, account.ID, &d, latest.ID, runStart)
	} else {
		err = s.store.SetAccountSyncState(ctx, account.ID, nil, "", runStart)
	}
	if err != nil {
		return err
	}

	stats.AccountsSynced++
	stats.TransactionsSynced += len(keep)
	stats.SkippedRecords += len(result.Skipped)

	s.logger.Info().
		Str("account", account.Name).
		Str("type", string(syncType)).
		Int("fetched", len(result.Transactions)).
		Int("synced", len(keep)).
		Int("skipped", len(result.Skipped)).
		Msg("Account synced")

	return nil
}

// filterNew keeps only transactions past the account's stored cursor:
// strictly newer dates always pass; cursor-date transactions pass when they
// are not the cursor transaction and not already stored (same-day insertion
// order at the source is ambiguous).
func (s *Service) filterNew(ctx context.Context, accountID string, txns []models.Transaction) ([]models.Transaction, error) {
	state, err := s.store.GetAccountSyncState(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// Never synced: behave as a full sync for this account.
	if state.LastTransactionDate == nil {
		return txns, nil
	}

	cursorDate := models.Day(*state.LastTransactionDate)
	var fresh []models.Transaction
	for _, txn := range txns {
		day := models.Day(txn.Date)
		if day.After(cursorDate) {
			fresh = append(fresh, txn)
			continue
		}
		if day.Equal(cursorDate) && txn.ID != state.LastTransactionID {
			exists, err := s.store.TransactionExists(ctx, txn.ID)
			if err != nil {
				return nil, err
			}
			if !exists {
				fresh = append(fresh, txn)
			}
		}
	}
	return fresh, nil
}

// latestObserved returns the latest-dated transaction, preferring the one
// the source ordering listed first on ties.
func latestObserved(txns []models.Transaction) *models.Transaction {
	var latest *models.Transaction
	for i := range txns {
		if latest == nil || txns[i].Date.After(latest.Date) {
			latest = &txns[i]
		}
	}
	return latest
}

func (s *Service) failRun(ctx context.Context, runID string, runErr error) {
	if err := s.store.FailSyncRun(ctx, runID, runErr); err != nil {
		s.logger.Error().Str("run_id", runID).Err(err).Msg("Could not mark sync run failed")
	}
}

// Ensure Service implements SyncService
var _ interfaces.SyncService = (*Service)(nil)
