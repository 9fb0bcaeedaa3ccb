// Package simulate replays matched bank transfers into a hypothetical
// benchmark position and combines it with the reconstructed bank balance
// history, answering "what if those transfers had bought the index instead".
package simulate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/interfaces"
	"github.com/finvault/ledgersync/internal/models"
)

// priceSearchDays bounds the forward search for a tradable close after a
// transfer date. Transfers landing just before a long market closure are
// skipped rather than matched to a far-future price.
const priceSearchDays = 5

const sharePrecision = 6

// Service implements SimulationService.
type Service struct {
	store   interfaces.LedgerStore
	market  interfaces.MarketDataClient
	history interfaces.HistoryService
	logger  *common.Logger
}

// NewService creates a new simulation service.
func NewService(store interfaces.LedgerStore, market interfaces.MarketDataClient, history interfaces.HistoryService, logger *common.Logger) *Service {
	return &Service{store: store, market: market, history: history, logger: logger}
}

// Run matches transfers by description pattern, buys the benchmark at the
// first available close on or after each transfer date, and produces a
// day-by-day combined view of bank balances plus the simulated position.
func (s *Service) Run(ctx context.Context, symbol, pattern string) (*models.SimulationResult, error) {
	transfers, err := s.store.FindTransfers(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if len(transfers) == 0 {
		return nil, fmt.Errorf("no transfers match pattern %q", pattern)
	}

	from := transfers[0].Date
	to := time.Now().UTC()
	closes, err := s.market.GetDailyCloses(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("no price history for %s", symbol)
	}
	sort.Slice(closes, func(i, j int) bool { return closes[i].Date.Before(closes[j].Date) })

	result := &models.SimulationResult{Symbol: symbol}
	for _, transfer := range transfers {
		bar, ok := firstCloseOnOrAfter(closes, transfer.Date)
		if !ok {
			s.logger.Warn().
				Str("date", transfer.Date.Format(models.DateLayout)).
				Str("amount", transfer.Amount.StringFixed(2)).
				Msg("No tradable price within search window, transfer skipped")
			result.SkippedTransfers = append(result.SkippedTransfers, transfer)
			continue
		}
		shares := transfer.Amount.DivRound(bar.Close, sharePrecision)
		result.Buys = append(result.Buys, models.SimulatedBuy{
			Transfer: transfer,
			Price:    bar.Close,
			Shares:   shares,
		})
		result.TotalInvested = result.TotalInvested.Add(transfer.Amount)
	}
	if len(result.Buys) == 0 {
		return nil, fmt.Errorf("no transfers could be priced against %s", symbol)
	}

	balances, err := s.history.Reconstruct(ctx)
	if err != nil {
		return nil, err
	}
	result.Days = s.buildDays(result.Buys, closes, s.history.Pivot(balances))
	if len(result.Days) > 0 {
		result.FinalValue = result.Days[len(result.Days)-1].CombinedValue
	}

	s.logger.Info().
		Str("symbol", symbol).
		Int("buys", len(result.Buys)).
		Int("skipped", len(result.SkippedTransfers)).
		Str("invested", result.TotalInvested.StringFixed(2)).
		Str("final_value", result.FinalValue.StringFixed(2)).
		Msg("Simulation complete")
	return result, nil
}

// firstCloseOnOrAfter finds the earliest close dated on or after day,
// no more than priceSearchDays later.
func firstCloseOnOrAfter(closes []models.DailyClose, day time.Time) (models.DailyClose, bool) {
	day = models.Day(day)
	limit := day.AddDate(0, 0, priceSearchDays)
	for _, c := range closes {
		if c.Date.Before(day) {
			continue
		}
		if c.Date.After(limit) {
			break
		}
		return c, true
	}
	return models.DailyClose{}, false
}

// buildDays walks the price series oldest to newest, accumulating shares as
// buys come into effect and pairing each day with the bank balance for that
// day. Bank balances carry forward over days the history does not cover.
func (s *Service) buildDays(buys []models.SimulatedBuy, closes []models.DailyClose, portfolio []models.PortfolioDay) []models.SimulationDay {
	bankByDay := make(map[time.Time]decimal.Decimal, len(portfolio))
	for _, day := range portfolio {
		bankByDay[models.Day(day.Date)] = day.PortfolioTotal
	}

	sortedBuys := make([]models.SimulatedBuy, len(buys))
	copy(sortedBuys, buys)
	sort.Slice(sortedBuys, func(i, j int) bool {
		return sortedBuys[i].Transfer.Date.Before(sortedBuys[j].Transfer.Date)
	})

	var days []models.SimulationDay
	shares := decimal.Zero
	bank := decimal.Zero
	next := 0
	for _, c := range closes {
		for next < len(sortedBuys) && !models.Day(sortedBuys[next].Transfer.Date).After(c.Date) {
			shares = shares.Add(sortedBuys[next].Shares)
			next++
		}
		if bal, ok := bankByDay[models.Day(c.Date)]; ok {
			bank = bal
		}
		position := shares.Mul(c.Close)
		days = append(days, models.SimulationDay{
			Date:          c.Date,
			BankBalance:   bank,
			Shares:        shares,
			PositionValue: position,
			CombinedValue: bank.Add(position),
		})
	}
	return days
}

// Ensure Service implements SimulationService
var _ interfaces.SimulationService = (*Service)(nil)
