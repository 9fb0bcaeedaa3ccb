package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is an outgoing transaction matched by the simulation's
// description pattern (e.g. a brokerage deposit).
type Transfer struct {
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"` // absolute value of the outflow
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
}

// DailyClose is a single end-of-day price for a symbol.
type DailyClose struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// SimulatedBuy records one simulated purchase made from a transfer.
type SimulatedBuy struct {
	Transfer Transfer        `json:"transfer"`
	Price    decimal.Decimal `json:"price"`
	Shares   decimal.Decimal `json:"shares"`
}

// SimulationDay is one day of the combined bank + simulated-position view.
type SimulationDay struct {
	Date          time.Time       `json:"date"`
	BankBalance   decimal.Decimal `json:"bank_balance"`
	Shares        decimal.Decimal `json:"shares"`
	PositionValue decimal.Decimal `json:"position_value"`
	CombinedValue decimal.Decimal `json:"combined_value"`
}

// SimulationResult is the full output of a benchmark simulation run.
type SimulationResult struct {
	Symbol           string          `json:"symbol"`
	Buys             []SimulatedBuy  `json:"buys"`
	SkippedTransfers []Transfer      `json:"skipped_transfers"` // no price within the search window
	Days             []SimulationDay `json:"days"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	FinalValue       decimal.Decimal `json:"final_value"`
}
