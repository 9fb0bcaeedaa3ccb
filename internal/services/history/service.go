// Package history reconstructs daily account balances by replaying posted
// transactions backward from each account's current balance.
package history

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/interfaces"
	"github.com/finvault/ledgersync/internal/models"
)

// Service implements HistoryService.
type Service struct {
	store  interfaces.LedgerStore
	logger *common.Logger
}

// NewService creates a new balance history service.
func NewService(store interfaces.LedgerStore, logger *common.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// dayActivity is one day's aggregate for one account.
type dayActivity struct {
	net   decimal.Decimal
	count int
}

// Reconstruct produces one end-of-day balance record per (open account,
// calendar day) from the latest posted-transaction date down to one day
// before the globally earliest one, so each series includes the opening
// balance that preceded the first observed transaction.
//
// Accounts without a balance snapshot or without any posted transactions
// yield no records: an empty series means insufficient data, never a zero
// balance. Accounts whose own history starts after the global earliest date
// are held constant back to the floor.
//
// The result is grouped by account, newest day first, and the emitted record
// for the latest date always equals the account's stored current balance.
func (s *Service) Reconstruct(ctx context.Context) ([]models.DailyBalance, error) {
	accounts, err := s.store.ListOpenAccounts(ctx)
	if err != nil {
		return nil, err
	}

	earliest, latest, ok, err := s.store.TransactionDateRange(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn().Msg("No posted transactions, nothing to reconstruct")
		return nil, nil
	}
	floor := earliest.AddDate(0, 0, -1)

	txns, err := s.store.ListPostedTransactions(ctx)
	if err != nil {
		return nil, err
	}

	// account id -> day -> aggregate
	activity := make(map[string]map[time.Time]dayActivity)
	for _, txn := range txns {
		day := models.Day(txn.Date)
		perDay := activity[txn.AccountID]
		if perDay == nil {
			perDay = make(map[time.Time]dayActivity)
			activity[txn.AccountID] = perDay
		}
		agg := perDay[day]
		agg.net = agg.net.Add(txn.Amount)
		agg.count++
		perDay[day] = agg
	}

	var records []models.DailyBalance
	for _, account := range accounts {
		if account.Balance == nil {
			s.logger.Warn().Str("account", account.Name).Msg("No balance anchor, skipping account")
			continue
		}
		perDay := activity[account.ID]
		if len(perDay) == 0 {
			s.logger.Debug().Str("account", account.Name).Msg("No posted transactions, skipping account")
			continue
		}

		records = append(records, replayAccount(account, perDay, latest, floor)...)
	}

	return records, nil
}

// replayAccount folds one account's series from the anchor balance down the
// date axis. The record for day d is emitted before subtracting day d's net
// change, so it reflects the state after all transactions dated <= d.
func replayAccount(account models.Account, perDay map[time.Time]dayActivity, latest, floor time.Time) []models.DailyBalance {
	running := account.Balance.Amount
	var out []models.DailyBalance

	for day := models.Day(latest); !day.Before(floor); day = day.AddDate(0, 0, -1) {
		agg := perDay[day]
		out = append(out, models.DailyBalance{
			AccountID:        account.ID,
			AccountName:      account.Name,
			AccountType:      account.Type,
			Institution:      account.Institution.Name,
			Date:             day,
			EndOfDayBalance:  running,
			TransactionCount: agg.count,
			DailyNetChange:   agg.net,
		})
		running = running.Sub(agg.net)
	}

	return out
}

// Pivot folds per-account records into one row per day: every account's
// balance, the portfolio total, and the day-over-day total change.
// Rows are returned newest first; the earliest row has no change value.
func (s *Service) Pivot(balances []models.DailyBalance) []models.PortfolioDay {
	byDate := make(map[time.Time]*models.PortfolioDay)
	for _, b := range balances {
		day := byDate[b.Date]
		if day == nil {
			day = &models.PortfolioDay{
				Date:     b.Date,
				Balances: make(map[string]decimal.Decimal),
			}
			byDate[b.Date] = day
		}
		day.Balances[b.AccountName] = b.EndOfDayBalance
		day.PortfolioTotal = day.PortfolioTotal.Add(b.EndOfDayBalance)
	}

	days := make([]models.PortfolioDay, 0, len(byDate))
	for _, day := range byDate {
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	for i := 1; i < len(days); i++ {
		change := days[i].PortfolioTotal.Sub(days[i-1].PortfolioTotal)
		days[i].PortfolioChange = &change
	}

	// Newest first for display and export.
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}

	return days
}

// Ensure Service implements HistoryService
var _ interfaces.HistoryService = (*Service)(nil)
