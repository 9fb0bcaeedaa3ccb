package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyBalance is one reconstructed end-of-day balance for one account.
// The record for day d reflects the state after all transactions dated <= d
// are applied relative to the account's anchor balance.
type DailyBalance struct {
	AccountID        string          `json:"account_id"`
	AccountName      string          `json:"account_name"`
	AccountType      AccountType     `json:"account_type"`
	Institution      string          `json:"institution"`
	Date             time.Time       `json:"date"`
	EndOfDayBalance  decimal.Decimal `json:"end_of_day_balance"`
	TransactionCount int             `json:"transaction_count"`
	DailyNetChange   decimal.Decimal `json:"daily_net_change"`
}

// PortfolioDay is one row of the pivoted balance history: every account's
// end-of-day balance on one date plus the portfolio total.
type PortfolioDay struct {
	Date            time.Time                  `json:"date"`
	Balances        map[string]decimal.Decimal `json:"balances"` // account name -> balance
	PortfolioTotal  decimal.Decimal            `json:"portfolio_total"`
	PortfolioChange *decimal.Decimal           `json:"portfolio_change,omitempty"` // nil on the earliest day
}
