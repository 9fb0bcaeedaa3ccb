// Package models defines data structures for ledgersync
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Day truncates a time to its UTC calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AccountType classifies an account.
type AccountType string

const (
	AccountTypeDepository AccountType = "depository"
	AccountTypeCredit     AccountType = "credit"
)

// AccountStatus indicates whether an account is still active at the source.
type AccountStatus string

const (
	AccountStatusOpen   AccountStatus = "open"
	AccountStatusClosed AccountStatus = "closed"
)

// TransactionStatus distinguishes final from provisional transactions.
// Pending transactions carry no durable identity and are never persisted.
type TransactionStatus string

const (
	TransactionStatusPosted  TransactionStatus = "posted"
	TransactionStatusPending TransactionStatus = "pending"
)

// CounterpartyType tags the kind of counterparty on a transaction.
type CounterpartyType string

const (
	CounterpartyOrganization CounterpartyType = "organization"
	CounterpartyPerson       CounterpartyType = "person"
)

// DetailCategory is the closed set of source-assigned transaction categories.
type DetailCategory string

const (
	CategoryAccommodation  DetailCategory = "accommodation"
	CategoryAdvertising    DetailCategory = "advertising"
	CategoryBar            DetailCategory = "bar"
	CategoryCharity        DetailCategory = "charity"
	CategoryClothing       DetailCategory = "clothing"
	CategoryDining         DetailCategory = "dining"
	CategoryEducation      DetailCategory = "education"
	CategoryElectronics    DetailCategory = "electronics"
	CategoryEntertainment  DetailCategory = "entertainment"
	CategoryFuel           DetailCategory = "fuel"
	CategoryGeneral        DetailCategory = "general"
	CategoryGroceries      DetailCategory = "groceries"
	CategoryHealth         DetailCategory = "health"
	CategoryHome           DetailCategory = "home"
	CategoryIncome         DetailCategory = "income"
	CategoryInsurance      DetailCategory = "insurance"
	CategoryInvestment     DetailCategory = "investment"
	CategoryLoan           DetailCategory = "loan"
	CategoryOffice         DetailCategory = "office"
	CategoryPhone          DetailCategory = "phone"
	CategoryService        DetailCategory = "service"
	CategoryShopping       DetailCategory = "shopping"
	CategorySoftware       DetailCategory = "software"
	CategorySport          DetailCategory = "sport"
	CategoryTax            DetailCategory = "tax"
	CategoryTransport      DetailCategory = "transport"
	CategoryTransportation DetailCategory = "transportation"
	CategoryUtilities      DetailCategory = "utilities"
)

var validCategories = map[DetailCategory]bool{
	CategoryAccommodation: true, CategoryAdvertising: true, CategoryBar: true,
	CategoryCharity: true, CategoryClothing: true, CategoryDining: true,
	CategoryEducation: true, CategoryElectronics: true, CategoryEntertainment: true,
	CategoryFuel: true, CategoryGeneral: true, CategoryGroceries: true,
	CategoryHealth: true, CategoryHome: true, CategoryIncome: true,
	CategoryInsurance: true, CategoryInvestment: true, CategoryLoan: true,
	CategoryOffice: true, CategoryPhone: true, CategoryService: true,
	CategoryShopping: true, CategorySoftware: true, CategorySport: true,
	CategoryTax: true, CategoryTransport: true, CategoryTransportation: true,
	CategoryUtilities: true,
}

// Valid reports whether the category is one of the known source categories.
func (c DetailCategory) Valid() bool {
	return validCategories[c]
}

// Institution represents a financial institution. Created on first account
// referencing it, name refreshed on re-sync, never deleted.
type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AccountBalance is a point-in-time balance snapshot reported by the source.
// Authoritative for the present moment only.
type AccountBalance struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// Account represents a bank account at the source.
// LastTransactionDate/LastTransactionID form the sync cursor; they are
// mutated exclusively after a successful per-account sync pass.
type Account struct {
	ID           string          `json:"id"`
	Institution  Institution     `json:"institution"`
	EnrollmentID string          `json:"enrollment_id"`
	Name         string          `json:"name"`
	Type         AccountType     `json:"type"`
	Subtype      string          `json:"subtype"`
	Status       AccountStatus   `json:"status"`
	Currency     string          `json:"currency"`
	LastFour     string          `json:"last_four"`
	Balance      *AccountBalance `json:"balance,omitempty"`

	LastTransactionDate *time.Time `json:"last_transaction_date,omitempty"`
	LastTransactionID   string     `json:"last_transaction_id,omitempty"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
}

// Counterparty identifies the other party on a transaction.
type Counterparty struct {
	Name string           `json:"name"`
	Type CounterpartyType `json:"type"`
}

// TransactionDetails carries the source's enrichment fields.
type TransactionDetails struct {
	Category         *DetailCategory `json:"category,omitempty"`
	ProcessingStatus string          `json:"processing_status"`
	Counterparty     *Counterparty   `json:"counterparty,omitempty"`
}

// Transaction is a single ledger entry. Identity is the globally unique ID;
// re-upserting the same ID refreshes mutable fields, never duplicates.
// Amount is signed: negative is an outflow.
type Transaction struct {
	ID             string             `json:"id"`
	AccountID      string             `json:"account_id"`
	Amount         decimal.Decimal    `json:"amount"`
	Date           time.Time          `json:"date"`
	Description    string             `json:"description"`
	Status         TransactionStatus  `json:"status"`
	Type           string             `json:"type"`
	RunningBalance *decimal.Decimal   `json:"running_balance,omitempty"`
	Details        TransactionDetails `json:"details"`
}
