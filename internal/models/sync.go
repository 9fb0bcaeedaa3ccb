package models

import "time"

// SyncType selects what a sync run fetches.
type SyncType string

const (
	SyncTypeFull        SyncType = "full"
	SyncTypeIncremental SyncType = "incremental"
)

// SyncRunStatus is the run lifecycle state. A run moves from running to
// exactly one terminal status and is never reopened.
type SyncRunStatus string

const (
	SyncRunRunning   SyncRunStatus = "running"
	SyncRunCompleted SyncRunStatus = "completed"
	SyncRunFailed    SyncRunStatus = "failed"
)

// SyncRun records one execution of the sync engine.
type SyncRun struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Status      SyncRunStatus `json:"status"`
	SyncType    SyncType      `json:"sync_type"`
	Stats       SyncStats     `json:"stats"`
	Error       string        `json:"error,omitempty"`
}

// SyncStats aggregates per-account results into run-level counters.
type SyncStats struct {
	AccountsSynced      int `json:"accounts_synced"`
	AccountsFailed      int `json:"accounts_failed"`
	TransactionsSynced  int `json:"transactions_synced"`
	NewTransactions     int `json:"new_transactions"`
	UpdatedTransactions int `json:"updated_transactions"`
	SkippedRecords      int `json:"skipped_records"`
}

// SyncState is the per-account cursor: how far a prior sync progressed.
type SyncState struct {
	LastTransactionDate *time.Time `json:"last_transaction_date,omitempty"`
	LastTransactionID   string     `json:"last_transaction_id,omitempty"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
}

// UpsertResult reports whether an upsert inserted a new row or refreshed
// an existing one.
type UpsertResult string

const (
	UpsertNew     UpsertResult = "new"
	UpsertUpdated UpsertResult = "updated"
)
