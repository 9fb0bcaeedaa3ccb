package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finvault/ledgersync/internal/models"
)

const timestampLayout = time.RFC3339

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// UpsertInstitution inserts the institution or refreshes its name.
func (s *Store) UpsertInstitution(ctx context.Context, inst models.Institution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO institutions (id, name, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = datetime('now')`,
		inst.ID, inst.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert institution %s: %w", inst.ID, err)
	}
	return nil
}

// UpsertAccount inserts the account or refreshes its metadata and balance
// snapshot. The sync cursor columns are deliberately untouched here; they
// change only through SetAccountSyncState.
func (s *Store) UpsertAccount(ctx context.Context, account models.Account) error {
	if err := s.UpsertInstitution(ctx, account.Institution); err != nil {
		return err
	}

	var balanceAmount, balanceUpdatedAt any
	balanceCurrency := account.Currency
	if account.Balance != nil {
		balanceAmount = account.Balance.Amount.String()
		balanceCurrency = account.Balance.Currency
		balanceUpdatedAt = formatTimestamp(time.Now())
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, institution_id, enrollment_id, name, type, subtype,
			status, currency, last_four, balance_amount, balance_currency,
			balance_updated_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			subtype = excluded.subtype,
			currency = excluded.currency,
			last_four = excluded.last_four,
			balance_amount = excluded.balance_amount,
			balance_currency = excluded.balance_currency,
			balance_updated_at = excluded.balance_updated_at,
			updated_at = datetime('now')`,
		account.ID, account.Institution.ID, account.EnrollmentID, account.Name,
		string(account.Type), account.Subtype, string(account.Status),
		account.Currency, account.LastFour, balanceAmount, balanceCurrency,
		balanceUpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.ID, err)
	}
	return nil
}

// TransactionExists reports whether a transaction id is already stored.
func (s *Store) TransactionExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM transactions WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check transaction %s: %w", id, err)
	}
	return true, nil
}

// UpsertTransaction inserts the transaction or refreshes its mutable fields
// (amount, description, status, running balance, details). The id and the
// row identity never change: re-fetching the same id is a refresh, not a
// duplicate.
func (s *Store) UpsertTransaction(ctx context.Context, txn models.Transaction) (models.UpsertResult, error) {
	exists, err := s.TransactionExists(ctx, txn.ID)
	if err != nil {
		return "", err
	}

	var runningBalance any
	if txn.RunningBalance != nil {
		runningBalance = txn.RunningBalance.String()
	}
	var category any
	if txn.Details.Category != nil {
		category = string(*txn.Details.Category)
	}
	var cpName, cpType any
	if txn.Details.Counterparty != nil {
		cpName = txn.Details.Counterparty.Name
		cpType = string(txn.Details.Counterparty.Type)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, account_id, amount, date, description, status, type,
			running_balance, category, processing_status,
			counterparty_name, counterparty_type, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			description = excluded.description,
			status = excluded.status,
			running_balance = excluded.running_balance,
			category = excluded.category,
			processing_status = excluded.processing_status,
			counterparty_name = excluded.counterparty_name,
			counterparty_type = excluded.counterparty_type,
			updated_at = datetime('now')`,
		txn.ID, txn.AccountID, txn.Amount.String(),
		txn.Date.Format(models.DateLayout), txn.Description,
		string(txn.Status), txn.Type, runningBalance, category,
		txn.Details.ProcessingStatus, cpName, cpType)
	if err != nil {
		return "", fmt.Errorf("failed to upsert transaction %s: %w", txn.ID, err)
	}

	if exists {
		return models.UpsertUpdated, nil
	}
	return models.UpsertNew, nil
}

// GetAccountSyncState returns the account's sync cursor. A missing account
// or an account that has never synced yields an empty state.
func (s *Store) GetAccountSyncState(ctx context.Context, accountID string) (*models.SyncState, error) {
	var lastDate, lastID, lastSynced sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT last_transaction_date, last_transaction_id, last_synced_at
		FROM accounts WHERE id = ?`, accountID).
		Scan(&lastDate, &lastID, &lastSynced)
	if err == sql.ErrNoRows {
		return &models.SyncState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state for %s: %w", accountID, err)
	}

	state := &models.SyncState{LastTransactionID: lastID.String}
	if lastDate.Valid && lastDate.String != "" {
		d, err := models.ParseDate(lastDate.String)
		if err != nil {
			return nil, err
		}
		state.LastTransactionDate = &d
	}
	if lastSynced.Valid && lastSynced.String != "" {
		t, err := parseTimestamp(lastSynced.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last_synced_at for %s: %w", accountID, err)
		}
		state.LastSyncedAt = &t
	}
	return state, nil
}

// SetAccountSyncState advances the account's cursor. A nil date leaves the
// cursor columns alone and only stamps last_synced_at. The cursor only moves
// forward: a date older than the stored one leaves the row untouched.
func (s *Store) SetAccountSyncState(ctx context.Context, accountID string, date *time.Time, txnID string, syncedAt time.Time) error {
	var err error
	if date != nil {
		day := date.Format(models.DateLayout)
		_, err = s.db.ExecContext(ctx, `
			UPDATE accounts
			SET last_transaction_date = ?, last_transaction_id = ?, last_synced_at = ?
			WHERE id = ? AND (last_transaction_date IS NULL OR last_transaction_date <= ?)`,
			day, txnID, formatTimestamp(syncedAt), accountID, day)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE accounts SET last_synced_at = ? WHERE id = ?`,
			formatTimestamp(syncedAt), accountID)
	}
	if err != nil {
		return fmt.Errorf("failed to set sync state for %s: %w", accountID, err)
	}
	return nil
}

// StartSyncRun creates a new sync run in the running state.
func (s *Store) StartSyncRun(ctx context.Context, syncType models.SyncType) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, started_at, status, sync_type)
		VALUES (?, ?, 'running', ?)`,
		id, formatTimestamp(time.Now()), string(syncType))
	if err != nil {
		return "", fmt.Errorf("failed to start sync run: %w", err)
	}
	return id, nil
}

// CompleteSyncRun writes the run's terminal completed status. It refuses to
// touch a run that has already reached a terminal state.
func (s *Store) CompleteSyncRun(ctx context.Context, runID string, stats models.SyncStats) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET completed_at = ?, status = 'completed',
			accounts_synced = ?, accounts_failed = ?, transactions_synced = ?,
			new_transactions = ?, updated_transactions = ?, skipped_records = ?
		WHERE id = ? AND status = 'running'`,
		formatTimestamp(time.Now()),
		stats.AccountsSynced, stats.AccountsFailed, stats.TransactionsSynced,
		stats.NewTransactions, stats.UpdatedTransactions, stats.SkippedRecords,
		runID)
	if err != nil {
		return fmt.Errorf("failed to complete sync run %s: %w", runID, err)
	}
	return ensureRunUpdated(res, runID)
}

// FailSyncRun writes the run's terminal failed status with the error
// captured verbatim.
func (s *Store) FailSyncRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET completed_at = ?, status = 'failed', error_message = ?
		WHERE id = ? AND status = 'running'`,
		formatTimestamp(time.Now()), msg, runID)
	if err != nil {
		return fmt.Errorf("failed to fail sync run %s: %w", runID, err)
	}
	return ensureRunUpdated(res, runID)
}

func ensureRunUpdated(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sync run %s is not running", runID)
	}
	return nil
}

// FailStaleRuns closes runs a crashed process left in the running state.
func (s *Store) FailStaleRuns(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET completed_at = ?, status = 'failed',
			error_message = 'stale: process exited before the run completed'
		WHERE status = 'running'`,
		formatTimestamp(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to close stale runs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const syncRunColumns = `id, started_at, completed_at, status, sync_type,
	accounts_synced, accounts_failed, transactions_synced,
	new_transactions, updated_transactions, skipped_records, error_message`

func scanSyncRun(row interface{ Scan(...any) error }) (*models.SyncRun, error) {
	var run models.SyncRun
	var startedAt string
	var completedAt, errMsg sql.NullString
	err := row.Scan(&run.ID, &startedAt, &completedAt, &run.Status, &run.SyncType,
		&run.Stats.AccountsSynced, &run.Stats.AccountsFailed,
		&run.Stats.TransactionsSynced, &run.Stats.NewTransactions,
		&run.Stats.UpdatedTransactions, &run.Stats.SkippedRecords, &errMsg)
	if err != nil {
		return nil, err
	}

	run.StartedAt, err = parseTimestamp(startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at on run %s: %w", run.ID, err)
	}
	if completedAt.Valid && completedAt.String != "" {
		t, err := parseTimestamp(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid completed_at on run %s: %w", run.ID, err)
		}
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return &run, nil
}

// GetLastCompletedRun returns the most recently completed run, or nil when
// no run has ever completed.
func (s *Store) GetLastCompletedRun(ctx context.Context) (*models.SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+syncRunColumns+`
		FROM sync_runs
		WHERE status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1`)
	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last completed run: %w", err)
	}
	return run, nil
}

// ListSyncRuns returns recent runs, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+syncRunColumns+`
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

const accountColumns = `a.id, a.institution_id, i.name, a.enrollment_id, a.name,
	a.type, a.subtype, a.status, a.currency, a.last_four,
	a.balance_amount, a.balance_currency,
	a.last_transaction_date, a.last_transaction_id, a.last_synced_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var a models.Account
	var accountType, status string
	var balanceAmount, balanceCurrency, lastDate, lastID, lastSynced sql.NullString

	err := row.Scan(&a.ID, &a.Institution.ID, &a.Institution.Name, &a.EnrollmentID,
		&a.Name, &accountType, &a.Subtype, &status, &a.Currency, &a.LastFour,
		&balanceAmount, &balanceCurrency, &lastDate, &lastID, &lastSynced)
	if err != nil {
		return nil, err
	}

	a.Type = models.AccountType(accountType)
	a.Status = models.AccountStatus(status)

	if balanceAmount.Valid && balanceAmount.String != "" {
		amount, err := decimal.NewFromString(balanceAmount.String)
		if err != nil {
			return nil, fmt.Errorf("invalid balance on account %s: %w", a.ID, err)
		}
		a.Balance = &models.AccountBalance{Currency: balanceCurrency.String, Amount: amount}
	}
	if lastDate.Valid && lastDate.String != "" {
		d, err := models.ParseDate(lastDate.String)
		if err != nil {
			return nil, err
		}
		a.LastTransactionDate = &d
	}
	a.LastTransactionID = lastID.String
	if lastSynced.Valid && lastSynced.String != "" {
		t, err := parseTimestamp(lastSynced.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last_synced_at on account %s: %w", a.ID, err)
		}
		a.LastSyncedAt = &t
	}
	return &a, nil
}

func (s *Store) listAccounts(ctx context.Context, where string) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts a
		JOIN institutions i ON a.institution_id = i.id
		`+where+`
		ORDER BY a.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// ListAccounts returns every stored account, by name.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return s.listAccounts(ctx, "")
}

// ListOpenAccounts returns accounts still open at the source, by name.
func (s *Store) ListOpenAccounts(ctx context.Context) ([]models.Account, error) {
	return s.listAccounts(ctx, `WHERE a.status = 'open'`)
}

const transactionColumns = `id, account_id, amount, date, description, status,
	type, running_balance, category, processing_status,
	counterparty_name, counterparty_type`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	var t models.Transaction
	var amount, date, status string
	var runningBalance, category, cpName, cpType sql.NullString

	err := row.Scan(&t.ID, &t.AccountID, &amount, &date, &t.Description, &status,
		&t.Type, &runningBalance, &category, &t.Details.ProcessingStatus,
		&cpName, &cpType)
	if err != nil {
		return nil, err
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount on transaction %s: %w", t.ID, err)
	}
	t.Date, err = models.ParseDate(date)
	if err != nil {
		return nil, err
	}
	t.Status = models.TransactionStatus(status)

	if runningBalance.Valid && runningBalance.String != "" {
		rb, err := decimal.NewFromString(runningBalance.String)
		if err != nil {
			return nil, fmt.Errorf("invalid running balance on transaction %s: %w", t.ID, err)
		}
		t.RunningBalance = &rb
	}
	if category.Valid && category.String != "" {
		c := models.DetailCategory(category.String)
		t.Details.Category = &c
	}
	if cpName.Valid && cpName.String != "" {
		t.Details.Counterparty = &models.Counterparty{
			Name: cpName.String,
			Type: models.CounterpartyType(cpType.String),
		}
	}
	return &t, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// ListPostedTransactions returns every posted transaction, grouped by
// account, newest date first within each account.
func (s *Store) ListPostedTransactions(ctx context.Context) ([]models.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'posted'
		ORDER BY account_id, date DESC, created_at DESC`)
}

// ListAccountTransactions returns an account's transactions, newest first.
func (s *Store) ListAccountTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ?
		ORDER BY date DESC, created_at DESC`, accountID)
}

// TransactionDateRange returns the posted-transaction date bounds.
// ok is false when the replica holds no posted transactions.
func (s *Store) TransactionDateRange(ctx context.Context) (time.Time, time.Time, bool, error) {
	var earliest, latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(date), MAX(date)
		FROM transactions
		WHERE status = 'posted'`).Scan(&earliest, &latest)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed to read date range: %w", err)
	}
	if !earliest.Valid || earliest.String == "" {
		return time.Time{}, time.Time{}, false, nil
	}

	from, err := models.ParseDate(earliest.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	to, err := models.ParseDate(latest.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return from, to, true, nil
}

// FindTransfers returns posted outflows whose description contains the
// pattern, case-insensitively, earliest first. Amounts are returned as
// absolute values.
func (s *Store) FindTransfers(ctx context.Context, pattern string) ([]models.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.date, t.description, t.amount, t.account_id, a.name
		FROM transactions t
		JOIN accounts a ON t.account_id = a.id
		WHERE instr(lower(t.description), lower(?)) > 0
			AND CAST(t.amount AS REAL) < 0
			AND t.status = 'posted'
		ORDER BY t.date ASC`, strings.TrimSpace(pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to find transfers: %w", err)
	}
	defer rows.Close()

	var transfers []models.Transfer
	for rows.Next() {
		var tr models.Transfer
		var date, amount string
		if err := rows.Scan(&date, &tr.Description, &amount, &tr.AccountID, &tr.AccountName); err != nil {
			return nil, err
		}
		tr.Date, err = models.ParseDate(date)
		if err != nil {
			return nil, err
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid transfer amount %q: %w", amount, err)
		}
		tr.Amount = amt.Abs()
		transfers = append(transfers, tr)
	}
	return transfers, rows.Err()
}
