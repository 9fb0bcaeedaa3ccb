package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(common.NewSilentLogger(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testAccount(id, name string, status models.AccountStatus) models.Account {
	return models.Account{
		ID:          id,
		Institution: models.Institution{ID: "chase", Name: "Chase"},
		Name:        name,
		Type:        models.AccountTypeDepository,
		Subtype:     "checking",
		Status:      status,
		Currency:    "USD",
		LastFour:    "1234",
	}
}

func testTransaction(id, accountID, date, amount string) models.Transaction {
	d, _ := models.ParseDate(date)
	amt, _ := decimal.NewFromString(amount)
	return models.Transaction{
		ID:          id,
		AccountID:   accountID,
		Amount:      amt,
		Date:        d,
		Description: "TEST " + id,
		Status:      models.TransactionStatusPosted,
		Type:        "card_payment",
	}
}

func TestUpsertTransaction_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertAccount(ctx, testAccount("acc_1", "Checking", models.AccountStatusOpen)); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}

	txn := testTransaction("txn_1", "acc_1", "2024-01-05", "-42.50")
	result, err := store.UpsertTransaction(ctx, txn)
	if err != nil {
		t.Fatalf("UpsertTransaction failed: %v", err)
	}
	if result != models.UpsertNew {
		t.Errorf("first upsert = %q, want new", result)
	}

	// Same id again with changed mutable fields: a refresh, not a duplicate
	txn.Description = "TEST txn_1 updated"
	txn.Amount = decimal.RequireFromString("-45.00")
	result, err = store.UpsertTransaction(ctx, txn)
	if err != nil {
		t.Fatalf("second UpsertTransaction failed: %v", err)
	}
	if result != models.UpsertUpdated {
		t.Errorf("second upsert = %q, want updated", result)
	}

	txns, err := store.ListAccountTransactions(ctx, "acc_1")
	if err != nil {
		t.Fatalf("ListAccountTransactions failed: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 row after double upsert, got %d", len(txns))
	}
	if !txns[0].Amount.Equal(decimal.RequireFromString("-45.00")) {
		t.Errorf("amount = %s, want -45.00", txns[0].Amount)
	}
	if txns[0].Description != "TEST txn_1 updated" {
		t.Errorf("description = %q, want refreshed value", txns[0].Description)
	}
}

func TestUpsertAccount_PreservesSyncCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	account := testAccount("acc_1", "Checking", models.AccountStatusOpen)
	if err := store.UpsertAccount(ctx, account); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}

	cursorDate, _ := models.ParseDate("2024-01-05")
	syncedAt := time.Now()
	if err := store.SetAccountSyncState(ctx, "acc_1", &cursorDate, "txn_9", syncedAt); err != nil {
		t.Fatalf("SetAccountSyncState failed: %v", err)
	}

	// Re-upserting the account must not disturb the cursor
	account.Name = "Checking Renamed"
	if err := store.UpsertAccount(ctx, account); err != nil {
		t.Fatalf("second UpsertAccount failed: %v", err)
	}

	state, err := store.GetAccountSyncState(ctx, "acc_1")
	if err != nil {
		t.Fatalf("GetAccountSyncState failed: %v", err)
	}
	if state.LastTransactionID != "txn_9" {
		t.Errorf("LastTransactionID = %q, want txn_9", state.LastTransactionID)
	}
	if state.LastTransactionDate == nil || !state.LastTransactionDate.Equal(cursorDate) {
		t.Errorf("LastTransactionDate = %v, want %v", state.LastTransactionDate, cursorDate)
	}
}

func TestSetAccountSyncState_NilDateStampsOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertAccount(ctx, testAccount("acc_1", "Checking", models.AccountStatusOpen)); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	cursorDate, _ := models.ParseDate("2024-01-05")
	if err := store.SetAccountSyncState(ctx, "acc_1", &cursorDate, "txn_9", time.Now()); err != nil {
		t.Fatalf("SetAccountSyncState failed: %v", err)
	}

	// Nil date: stamp last_synced_at, leave the cursor where it was
	later := time.Now().Add(time.Hour)
	if err := store.SetAccountSyncState(ctx, "acc_1", nil, "", later); err != nil {
		t.Fatalf("nil-date SetAccountSyncState failed: %v", err)
	}

	state, err := store.GetAccountSyncState(ctx, "acc_1")
	if err != nil {
		t.Fatalf("GetAccountSyncState failed: %v", err)
	}
	if state.LastTransactionID != "txn_9" {
		t.Errorf("LastTransactionID = %q, want txn_9 preserved", state.LastTransactionID)
	}
	if state.LastSyncedAt == nil || state.LastSyncedAt.Unix() != later.UTC().Truncate(time.Second).Unix() {
		t.Errorf("LastSyncedAt = %v, want %v", state.LastSyncedAt, later)
	}
}

func TestSetAccountSyncState_CursorOnlyMovesForward(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertAccount(ctx, testAccount("acc_1", "Checking", models.AccountStatusOpen)); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	cursorDate, _ := models.ParseDate("2024-01-10")
	if err := store.SetAccountSyncState(ctx, "acc_1", &cursorDate, "txn_10", time.Now()); err != nil {
		t.Fatalf("SetAccountSyncState failed: %v", err)
	}

	// An older date must not regress the cursor
	staleDate, _ := models.ParseDate("2024-01-05")
	if err := store.SetAccountSyncState(ctx, "acc_1", &staleDate, "txn_5", time.Now()); err != nil {
		t.Fatalf("stale SetAccountSyncState failed: %v", err)
	}
	state, err := store.GetAccountSyncState(ctx, "acc_1")
	if err != nil {
		t.Fatalf("GetAccountSyncState failed: %v", err)
	}
	if state.LastTransactionID != "txn_10" {
		t.Errorf("LastTransactionID = %q, want txn_10 preserved", state.LastTransactionID)
	}
	if state.LastTransactionDate == nil || !state.LastTransactionDate.Equal(cursorDate) {
		t.Errorf("LastTransactionDate = %v, want %v", state.LastTransactionDate, cursorDate)
	}

	// A same-date write refreshes the transaction id
	if err := store.SetAccountSyncState(ctx, "acc_1", &cursorDate, "txn_11", time.Now()); err != nil {
		t.Fatalf("same-date SetAccountSyncState failed: %v", err)
	}
	state, err = store.GetAccountSyncState(ctx, "acc_1")
	if err != nil {
		t.Fatalf("GetAccountSyncState failed: %v", err)
	}
	if state.LastTransactionID != "txn_11" {
		t.Errorf("LastTransactionID = %q, want txn_11 after same-date write", state.LastTransactionID)
	}

	// A newer date advances as before
	newerDate, _ := models.ParseDate("2024-01-12")
	if err := store.SetAccountSyncState(ctx, "acc_1", &newerDate, "txn_12", time.Now()); err != nil {
		t.Fatalf("advancing SetAccountSyncState failed: %v", err)
	}
	state, err = store.GetAccountSyncState(ctx, "acc_1")
	if err != nil {
		t.Fatalf("GetAccountSyncState failed: %v", err)
	}
	if state.LastTransactionDate == nil || !state.LastTransactionDate.Equal(newerDate) {
		t.Errorf("LastTransactionDate = %v, want %v", state.LastTransactionDate, newerDate)
	}
}

func TestGetAccountSyncState_UnknownAccountIsEmpty(t *testing.T) {
	store := newTestStore(t)

	state, err := store.GetAccountSyncState(context.Background(), "acc_missing")
	if err != nil {
		t.Fatalf("GetAccountSyncState failed: %v", err)
	}
	if state.LastTransactionDate != nil || state.LastTransactionID != "" || state.LastSyncedAt != nil {
		t.Errorf("expected empty state, got %+v", state)
	}
}

func TestSyncRun_SingleTerminalStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runID, err := store.StartSyncRun(ctx, models.SyncTypeFull)
	if err != nil {
		t.Fatalf("StartSyncRun failed: %v", err)
	}

	stats := models.SyncStats{AccountsSynced: 2, TransactionsSynced: 10, NewTransactions: 10}
	if err := store.CompleteSyncRun(ctx, runID, stats); err != nil {
		t.Fatalf("CompleteSyncRun failed: %v", err)
	}

	// A terminal run must reject any further terminal write
	if err := store.CompleteSyncRun(ctx, runID, stats); err == nil {
		t.Error("second CompleteSyncRun should fail")
	}
	if err := store.FailSyncRun(ctx, runID, context.DeadlineExceeded); err == nil {
		t.Error("FailSyncRun after completion should fail")
	}

	last, err := store.GetLastCompletedRun(ctx)
	if err != nil {
		t.Fatalf("GetLastCompletedRun failed: %v", err)
	}
	if last == nil || last.ID != runID {
		t.Fatalf("last completed run = %+v, want id %s", last, runID)
	}
	if last.Status != models.SyncRunCompleted {
		t.Errorf("status = %q, want completed", last.Status)
	}
	if last.Stats.TransactionsSynced != 10 {
		t.Errorf("transactions_synced = %d, want 10", last.Stats.TransactionsSynced)
	}
	if last.CompletedAt == nil {
		t.Error("completed run has no completed_at")
	}
}

func TestGetLastCompletedRun_IgnoresFailedRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runID, err := store.StartSyncRun(ctx, models.SyncTypeIncremental)
	if err != nil {
		t.Fatalf("StartSyncRun failed: %v", err)
	}
	if err := store.FailSyncRun(ctx, runID, context.Canceled); err != nil {
		t.Fatalf("FailSyncRun failed: %v", err)
	}

	last, err := store.GetLastCompletedRun(ctx)
	if err != nil {
		t.Fatalf("GetLastCompletedRun failed: %v", err)
	}
	if last != nil {
		t.Errorf("expected nil, got %+v", last)
	}
}

func TestFailStaleRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stale1, _ := store.StartSyncRun(ctx, models.SyncTypeFull)
	stale2, _ := store.StartSyncRun(ctx, models.SyncTypeIncremental)
	done, _ := store.StartSyncRun(ctx, models.SyncTypeFull)
	if err := store.CompleteSyncRun(ctx, done, models.SyncStats{}); err != nil {
		t.Fatalf("CompleteSyncRun failed: %v", err)
	}

	n, err := store.FailStaleRuns(ctx)
	if err != nil {
		t.Fatalf("FailStaleRuns failed: %v", err)
	}
	if n != 2 {
		t.Errorf("closed %d stale runs, want 2", n)
	}

	runs, err := store.ListSyncRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListSyncRuns failed: %v", err)
	}
	statuses := map[string]models.SyncRunStatus{}
	for _, run := range runs {
		statuses[run.ID] = run.Status
	}
	if statuses[stale1] != models.SyncRunFailed || statuses[stale2] != models.SyncRunFailed {
		t.Errorf("stale runs not failed: %v", statuses)
	}
	if statuses[done] != models.SyncRunCompleted {
		t.Errorf("completed run disturbed: %v", statuses[done])
	}
}

func TestTransactionDateRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, ok, err := store.TransactionDateRange(ctx); err != nil || ok {
		t.Fatalf("empty replica: ok=%v err=%v, want ok=false", ok, err)
	}

	if err := store.UpsertAccount(ctx, testAccount("acc_1", "Checking", models.AccountStatusOpen)); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	for _, spec := range [][2]string{
		{"txn_1", "2024-01-03"}, {"txn_2", "2024-02-15"}, {"txn_3", "2024-01-20"},
	} {
		if _, err := store.UpsertTransaction(ctx, testTransaction(spec[0], "acc_1", spec[1], "-10")); err != nil {
			t.Fatalf("UpsertTransaction failed: %v", err)
		}
	}
	// Pending rows are outside the posted date range
	pending := testTransaction("txn_p", "acc_1", "2023-12-01", "-5")
	pending.Status = models.TransactionStatusPending
	if _, err := store.UpsertTransaction(ctx, pending); err != nil {
		t.Fatalf("UpsertTransaction failed: %v", err)
	}

	earliest, latest, ok, err := store.TransactionDateRange(ctx)
	if err != nil || !ok {
		t.Fatalf("TransactionDateRange: ok=%v err=%v", ok, err)
	}
	if earliest.Format(models.DateLayout) != "2024-01-03" {
		t.Errorf("earliest = %s, want 2024-01-03", earliest.Format(models.DateLayout))
	}
	if latest.Format(models.DateLayout) != "2024-02-15" {
		t.Errorf("latest = %s, want 2024-02-15", latest.Format(models.DateLayout))
	}
}

func TestFindTransfers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertAccount(ctx, testAccount("acc_1", "Checking", models.AccountStatusOpen)); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}

	out1 := testTransaction("txn_1", "acc_1", "2024-01-10", "-500.00")
	out1.Description = "ROBINHOOD TRANSFER"
	out2 := testTransaction("txn_2", "acc_1", "2024-01-05", "-250.00")
	out2.Description = "Robinhood Deposit"
	refund := testTransaction("txn_3", "acc_1", "2024-01-12", "100.00")
	refund.Description = "ROBINHOOD REFUND" // inflow, not a transfer out
	unrelated := testTransaction("txn_4", "acc_1", "2024-01-13", "-30.00")
	unrelated.Description = "GROCERY STORE"

	for _, txn := range []models.Transaction{out1, out2, refund, unrelated} {
		if _, err := store.UpsertTransaction(ctx, txn); err != nil {
			t.Fatalf("UpsertTransaction failed: %v", err)
		}
	}

	transfers, err := store.FindTransfers(ctx, "robinhood")
	if err != nil {
		t.Fatalf("FindTransfers failed: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}
	// Earliest first, amounts absolute
	if transfers[0].Date.Format(models.DateLayout) != "2024-01-05" {
		t.Errorf("first transfer date = %s, want 2024-01-05", transfers[0].Date.Format(models.DateLayout))
	}
	if !transfers[0].Amount.Equal(decimal.RequireFromString("250.00")) {
		t.Errorf("first transfer amount = %s, want 250.00", transfers[0].Amount)
	}
	if transfers[0].AccountName != "Checking" {
		t.Errorf("account name = %q, want Checking", transfers[0].AccountName)
	}
}

func TestListOpenAccounts_FiltersClosed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertAccount(ctx, testAccount("acc_1", "Checking", models.AccountStatusOpen)); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	if err := store.UpsertAccount(ctx, testAccount("acc_2", "Old Savings", models.AccountStatusClosed)); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}

	open, err := store.ListOpenAccounts(ctx)
	if err != nil {
		t.Fatalf("ListOpenAccounts failed: %v", err)
	}
	if len(open) != 1 || open[0].ID != "acc_1" {
		t.Fatalf("open accounts = %+v, want only acc_1", open)
	}

	all, err := store.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(all))
	}
}
