// Package export writes replica data and balance history to CSV and PNG
// files under the configured export directory.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"time"

	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/interfaces"
	"github.com/finvault/ledgersync/internal/models"
)

const filenameStamp = "20060102_150405"

// Service implements ExportService.
type Service struct {
	storage interfaces.StorageManager
	history interfaces.HistoryService
	logger  *common.Logger
}

// NewService creates a new export service.
func NewService(storage interfaces.StorageManager, history interfaces.HistoryService, logger *common.Logger) *Service {
	return &Service{storage: storage, history: history, logger: logger}
}

func writeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportTransactionsCSV writes every posted transaction to a timestamped
// CSV file and returns the path written.
func (s *Service) ExportTransactionsCSV(ctx context.Context) (string, error) {
	txns, err := s.storage.Ledger().ListPostedTransactions(ctx)
	if err != nil {
		return "", err
	}

	records := [][]string{{
		"id", "account_id", "date", "amount", "description", "status",
		"type", "running_balance", "category", "processing_status",
		"counterparty_name", "counterparty_type",
	}}
	for _, t := range txns {
		runningBalance := ""
		if t.RunningBalance != nil {
			runningBalance = t.RunningBalance.String()
		}
		category := ""
		if t.Details.Category != nil {
			category = string(*t.Details.Category)
		}
		cpName, cpType := "", ""
		if t.Details.Counterparty != nil {
			cpName = t.Details.Counterparty.Name
			cpType = string(t.Details.Counterparty.Type)
		}
		records = append(records, []string{
			t.ID, t.AccountID, t.Date.Format(models.DateLayout),
			t.Amount.StringFixed(2), t.Description, string(t.Status),
			t.Type, runningBalance, category, t.Details.ProcessingStatus,
			cpName, cpType,
		})
	}

	data, err := writeCSV(records)
	if err != nil {
		return "", err
	}

	path, err := s.storage.WriteExport(
		fmt.Sprintf("transactions_%s.csv", time.Now().Format(filenameStamp)), data)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("path", path).Int("rows", len(records)-1).Msg("Transactions exported")
	return path, nil
}

// ExportAccountsCSV writes all accounts to a timestamped CSV file.
func (s *Service) ExportAccountsCSV(ctx context.Context) (string, error) {
	accounts, err := s.storage.Ledger().ListAccounts(ctx)
	if err != nil {
		return "", err
	}

	records := [][]string{{
		"id", "institution", "name", "type", "subtype", "status",
		"currency", "last_four", "balance", "last_synced_at",
	}}
	for _, a := range accounts {
		balance := ""
		if a.Balance != nil {
			balance = a.Balance.Amount.StringFixed(2)
		}
		lastSynced := ""
		if a.LastSyncedAt != nil {
			lastSynced = a.LastSyncedAt.Format(time.RFC3339)
		}
		records = append(records, []string{
			a.ID, a.Institution.Name, a.Name, string(a.Type), a.Subtype,
			string(a.Status), a.Currency, a.LastFour, balance, lastSynced,
		})
	}

	data, err := writeCSV(records)
	if err != nil {
		return "", err
	}

	path, err := s.storage.WriteExport(
		fmt.Sprintf("accounts_%s.csv", time.Now().Format(filenameStamp)), data)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("path", path).Int("rows", len(records)-1).Msg("Accounts exported")
	return path, nil
}

// ExportBalanceHistoryCSV writes the reconstructed balance history as a
// pivot table: one row per day, one column per account, plus the portfolio
// total and its day-over-day change, newest day first.
func (s *Service) ExportBalanceHistoryCSV(ctx context.Context) (string, error) {
	balances, err := s.history.Reconstruct(ctx)
	if err != nil {
		return "", err
	}
	if len(balances) == 0 {
		return "", fmt.Errorf("no balance history to export")
	}

	days := s.history.Pivot(balances)

	// Stable column order across every row.
	nameSet := make(map[string]bool)
	for _, day := range days {
		for name := range day.Balances {
			nameSet[name] = true
		}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	header := append([]string{"date", "total_portfolio", "portfolio_change"}, names...)
	records := [][]string{header}
	for _, day := range days {
		change := ""
		if day.PortfolioChange != nil {
			change = day.PortfolioChange.StringFixed(2)
		}
		row := []string{
			day.Date.Format(models.DateLayout),
			day.PortfolioTotal.StringFixed(2),
			change,
		}
		for _, name := range names {
			if bal, ok := day.Balances[name]; ok {
				row = append(row, bal.StringFixed(2))
			} else {
				row = append(row, "")
			}
		}
		records = append(records, row)
	}

	data, err := writeCSV(records)
	if err != nil {
		return "", err
	}

	path, err := s.storage.WriteExport(
		fmt.Sprintf("daily_balances_pivot_%s.csv", time.Now().Format(filenameStamp)), data)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("path", path).Int("days", len(days)).Msg("Balance history exported")
	return path, nil
}

// ExportBalanceChart renders the portfolio total over time as a PNG chart.
func (s *Service) ExportBalanceChart(ctx context.Context) (string, error) {
	balances, err := s.history.Reconstruct(ctx)
	if err != nil {
		return "", err
	}
	if len(balances) == 0 {
		return "", fmt.Errorf("no balance history to chart")
	}

	png, err := RenderBalanceChart(s.history.Pivot(balances))
	if err != nil {
		return "", err
	}

	path, err := s.storage.WriteExport(
		fmt.Sprintf("balance_history_%s.png", time.Now().Format(filenameStamp)), png)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("path", path).Msg("Balance chart exported")
	return path, nil
}

// Ensure Service implements ExportService
var _ interfaces.ExportService = (*Service)(nil)
