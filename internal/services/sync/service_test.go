package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/interfaces"
	"github.com/finvault/ledgersync/internal/models"
	"github.com/finvault/ledgersync/internal/storage/sqlite"
)

type fakeClient struct {
	accounts []models.Account
	err      error
}

func (c *fakeClient) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return c.accounts, c.err
}

func (c *fakeClient) ListTransactions(ctx context.Context, accountID, fromID string, count int) (*interfaces.TransactionPage, error) {
	return nil, fmt.Errorf("not used")
}

func (c *fakeClient) Health(ctx context.Context) bool { return true }

type fakeFetcher struct {
	results map[string]*interfaces.FetchResult
	errs    map[string]error
}

func (f *fakeFetcher) FetchAll(ctx context.Context, accountID string) (*interfaces.FetchResult, error) {
	if err := f.errs[accountID]; err != nil {
		return nil, err
	}
	if result, ok := f.results[accountID]; ok {
		return result, nil
	}
	return &interfaces.FetchResult{}, nil
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(common.NewSilentLogger(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func account(id, name string) models.Account {
	return models.Account{
		ID:          id,
		Institution: models.Institution{ID: "chase", Name: "Chase"},
		Name:        name,
		Type:        models.AccountTypeDepository,
		Status:      models.AccountStatusOpen,
		Currency:    "USD",
	}
}

func txn(id, accountID, date, amount string) models.Transaction {
	d, _ := models.ParseDate(date)
	return models.Transaction{
		ID:        id,
		AccountID: accountID,
		Amount:    decimal.RequireFromString(amount),
		Date:      d,
		Status:    models.TransactionStatusPosted,
	}
}

func TestRun_FirstSyncIsFull(t *testing.T) {
	store := newTestStore(t)
	client := &fakeClient{accounts: []models.Account{account("acc_1", "Checking")}}
	fetcher := &fakeFetcher{results: map[string]*interfaces.FetchResult{
		"acc_1": {Transactions: []models.Transaction{
			txn("txn_2", "acc_1", "2024-01-05", "-42.50"),
			txn("txn_1", "acc_1", "2024-01-03", "100.00"),
		}},
	}}

	svc := NewService(store, client, fetcher, common.NewSilentLogger())
	stats, err := svc.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.AccountsSynced != 1 || stats.NewTransactions != 2 || stats.UpdatedTransactions != 0 {
		t.Errorf("stats = %+v, want 1 account / 2 new / 0 updated", stats)
	}

	runs, err := store.ListSyncRuns(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListSyncRuns: %v, %d runs", err, len(runs))
	}
	if runs[0].SyncType != models.SyncTypeFull {
		t.Errorf("first run type = %q, want full", runs[0].SyncType)
	}
	if runs[0].Status != models.SyncRunCompleted {
		t.Errorf("run status = %q, want completed", runs[0].Status)
	}

	state, err := store.GetAccountSyncState(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("GetAccountSyncState failed: %v", err)
	}
	if state.LastTransactionID != "txn_2" {
		t.Errorf("cursor id = %q, want txn_2", state.LastTransactionID)
	}
	if state.LastTransactionDate == nil || state.LastTransactionDate.Format(models.DateLayout) != "2024-01-05" {
		t.Errorf("cursor date = %v, want 2024-01-05", state.LastTransactionDate)
	}
}

func TestRun_IncrementalFiltersAtCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Seed an earlier completed run so the next run is incremental, and a
	// cursor at (2024-01-05, txn_9) with txn_9 already stored.
	seedClient := &fakeClient{accounts: []models.Account{account("acc_1", "Checking")}}
	seedFetcher := &fakeFetcher{results: map[string]*interfaces.FetchResult{
		"acc_1": {Transactions: []models.Transaction{txn("txn_9", "acc_1", "2024-01-05", "-10.00")}},
	}}
	if _, err := NewService(store, seedClient, seedFetcher, common.NewSilentLogger()).Run(ctx, false); err != nil {
		t.Fatalf("seed run failed: %v", err)
	}

	// The source now lists a newer-dated txn_11, a same-date sibling txn_10,
	// and the cursor transaction txn_9 again.
	fetcher := &fakeFetcher{results: map[string]*interfaces.FetchResult{
		"acc_1": {Transactions: []models.Transaction{
			txn("txn_11", "acc_1", "2024-01-06", "-30.00"),
			txn("txn_10", "acc_1", "2024-01-05", "-20.00"),
			txn("txn_9", "acc_1", "2024-01-05", "-10.00"),
		}},
	}}
	svc := NewService(store, seedClient, fetcher, common.NewSilentLogger())
	stats, err := svc.Run(ctx, false)
	if err != nil {
		t.Fatalf("incremental run failed: %v", err)
	}

	if stats.NewTransactions != 2 || stats.UpdatedTransactions != 0 {
		t.Errorf("stats = %+v, want 2 new (txn_10, txn_11) and no refresh of txn_9", stats)
	}
	if stats.TransactionsSynced != 2 {
		t.Errorf("synced = %d, want 2", stats.TransactionsSynced)
	}

	runs, _ := store.ListSyncRuns(ctx, 1)
	if runs[0].SyncType != models.SyncTypeIncremental {
		t.Errorf("run type = %q, want incremental", runs[0].SyncType)
	}

	state, err := store.GetAccountSyncState(ctx, "acc_1")
	if err != nil {
		t.Fatalf("GetAccountSyncState failed: %v", err)
	}
	if state.LastTransactionID != "txn_11" {
		t.Errorf("cursor id = %q, want txn_11", state.LastTransactionID)
	}
	if state.LastTransactionDate.Format(models.DateLayout) != "2024-01-06" {
		t.Errorf("cursor date = %v, want 2024-01-06", state.LastTransactionDate)
	}
}

func TestRun_ForceFullRefreshesExistingRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	client := &fakeClient{accounts: []models.Account{account("acc_1", "Checking")}}
	fetcher := &fakeFetcher{results: map[string]*interfaces.FetchResult{
		"acc_1": {Transactions: []models.Transaction{txn("txn_1", "acc_1", "2024-01-03", "-10.00")}},
	}}
	svc := NewService(store, client, fetcher, common.NewSilentLogger())

	if _, err := svc.Run(ctx, false); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	stats, err := svc.Run(ctx, true)
	if err != nil {
		t.Fatalf("forced run failed: %v", err)
	}

	if stats.NewTransactions != 0 || stats.UpdatedTransactions != 1 {
		t.Errorf("stats = %+v, want 0 new / 1 updated", stats)
	}
	runs, _ := store.ListSyncRuns(ctx, 1)
	if runs[0].SyncType != models.SyncTypeFull {
		t.Errorf("forced run type = %q, want full", runs[0].SyncType)
	}
}

func TestRun_StaleLastSyncPromotesToFull(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	client := &fakeClient{accounts: []models.Account{account("acc_1", "Checking")}}
	fetcher := &fakeFetcher{}
	// A threshold of zero-ish means any completed run is already stale.
	svc := NewService(store, client, fetcher, common.NewSilentLogger(), WithFullSyncAge(time.Nanosecond))

	if _, err := svc.Run(ctx, false); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := svc.Run(ctx, false); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	runs, err := store.ListSyncRuns(ctx, 2)
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListSyncRuns: %v, %d runs", err, len(runs))
	}
	for _, run := range runs {
		if run.SyncType != models.SyncTypeFull {
			t.Errorf("run %s type = %q, want full", run.ID, run.SyncType)
		}
	}
}

func TestRun_FetchFailureIsolatedToAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	client := &fakeClient{accounts: []models.Account{
		account("acc_bad", "Broken"),
		account("acc_ok", "Checking"),
	}}
	fetcher := &fakeFetcher{
		results: map[string]*interfaces.FetchResult{
			"acc_ok": {Transactions: []models.Transaction{txn("txn_1", "acc_ok", "2024-01-03", "-10.00")}},
		},
		errs: map[string]error{"acc_bad": fmt.Errorf("connection reset")},
	}

	svc := NewService(store, client, fetcher, common.NewSilentLogger())
	stats, err := svc.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.AccountsFailed != 1 || stats.AccountsSynced != 1 {
		t.Errorf("stats = %+v, want 1 failed / 1 synced", stats)
	}
	if stats.NewTransactions != 1 {
		t.Errorf("new = %d, want 1", stats.NewTransactions)
	}

	// The failed account's cursor must be untouched
	state, err := store.GetAccountSyncState(ctx, "acc_bad")
	if err != nil {
		t.Fatalf("GetAccountSyncState failed: %v", err)
	}
	if state.LastTransactionID != "" || state.LastSyncedAt != nil {
		t.Errorf("expected untouched cursor for failed account, got %+v", state)
	}

	runs, _ := store.ListSyncRuns(ctx, 1)
	if runs[0].Status != models.SyncRunCompleted {
		t.Errorf("run status = %q, want completed despite account failure", runs[0].Status)
	}
}

func TestRun_SourceUnreachableFailsRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	client := &fakeClient{err: fmt.Errorf("dial tcp: connection refused")}
	svc := NewService(store, client, &fakeFetcher{}, common.NewSilentLogger())

	if _, err := svc.Run(ctx, false); err == nil {
		t.Fatal("expected error when account listing fails")
	}

	runs, err := store.ListSyncRuns(ctx, 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListSyncRuns: %v, %d runs", err, len(runs))
	}
	if runs[0].Status != models.SyncRunFailed {
		t.Errorf("run status = %q, want failed", runs[0].Status)
	}
	if runs[0].Error == "" {
		t.Error("failed run should record the error")
	}
}

func TestRun_CountsSkippedRecords(t *testing.T) {
	store := newTestStore(t)
	client := &fakeClient{accounts: []models.Account{account("acc_1", "Checking")}}
	fetcher := &fakeFetcher{results: map[string]*interfaces.FetchResult{
		"acc_1": {
			Transactions: []models.Transaction{txn("txn_1", "acc_1", "2024-01-03", "-10.00")},
			Skipped: []interfaces.SkippedRecord{
				{ID: "txn_bad", Reason: "invalid amount"},
			},
		},
	}}

	svc := NewService(store, client, fetcher, common.NewSilentLogger())
	stats, err := svc.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.SkippedRecords != 1 {
		t.Errorf("skipped = %d, want 1", stats.SkippedRecords)
	}
}
