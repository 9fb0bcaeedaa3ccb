// Package teller provides a client for a Teller-style banking API
package teller

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/interfaces"
	"github.com/finvault/ledgersync/internal/models"
)

const (
	DefaultBaseURL   = "https://api.teller.io"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second

	// balanceLookback is how many recent transactions are scanned for a
	// running balance when deriving an account's snapshot balance.
	balanceLookback = 20
)

// Client implements the LedgerClient interface
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *common.Logger
	limiter     *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithClientCertificate configures mutual TLS with the given certificate
// and key files. Returns the option and any load error.
func WithClientCertificate(certFile, keyFile string) (ClientOption, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
			},
		}
	}, nil
}

// NewClient creates a new Teller client.
// The access token is sent as the basic-auth username with an empty password.
func NewClient(accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a transport-level API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Teller API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RemoteError is a structured error reported in the source's error envelope.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type errorEnvelope struct {
	Error *RemoteError `json:"error"`
}

// get performs a rate-limited GET request and returns the raw body after
// checking the HTTP status and the source's error envelope.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.accessToken, "")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", path).Msg("Teller API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// The source reports structured errors in an envelope, sometimes with
	// a 200 status.
	var envelope errorEnvelope
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil && envelope.Error.Code != "" {
		return nil, envelope.Error
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	return body, nil
}

// Health reports whether the source is reachable.
func (c *Client) Health(ctx context.Context) bool {
	_, err := c.get(ctx, "/health", nil)
	return err == nil
}

type institutionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type accountResponse struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Currency     string              `json:"currency"`
	Type         string              `json:"type"`
	Subtype      string              `json:"subtype"`
	Status       string              `json:"status"`
	LastFour     string              `json:"last_four"`
	EnrollmentID string              `json:"enrollment_id"`
	Institution  institutionResponse `json:"institution"`
}

// ListAccounts retrieves all accounts for the authenticated user with a
// balance snapshot attached. An account that fails validation is skipped
// and logged; it does not abort the listing.
func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	body, err := c.get(ctx, "/accounts", nil)
	if err != nil {
		return nil, err
	}

	var raw []accountResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}

	accounts := make([]models.Account, 0, len(raw))
	for _, ar := range raw {
		account, err := ar.toModel()
		if err != nil {
			c.logger.Warn().Str("account_id", ar.ID).Err(err).Msg("Skipping invalid account record")
			continue
		}

		balance, err := c.GetAccountBalance(ctx, account.ID, account.Currency)
		if err != nil {
			c.logger.Warn().Str("account_id", account.ID).Err(err).Msg("Could not derive account balance")
		} else {
			account.Balance = balance
		}

		accounts = append(accounts, *account)
	}

	return accounts, nil
}

func (ar accountResponse) toModel() (*models.Account, error) {
	if ar.ID == "" {
		return nil, fmt.Errorf("missing account id")
	}

	accountType := models.AccountType(ar.Type)
	if accountType != models.AccountTypeDepository && accountType != models.AccountTypeCredit {
		return nil, fmt.Errorf("unknown account type %q", ar.Type)
	}

	status := models.AccountStatus(ar.Status)
	if status == "" {
		status = models.AccountStatusOpen
	} else if status != models.AccountStatusOpen && status != models.AccountStatusClosed {
		return nil, fmt.Errorf("unknown account status %q", ar.Status)
	}

	return &models.Account{
		ID:           ar.ID,
		Institution:  models.Institution{ID: ar.Institution.ID, Name: ar.Institution.Name},
		EnrollmentID: ar.EnrollmentID,
		Name:         ar.Name,
		Type:         accountType,
		Subtype:      ar.Subtype,
		Status:       status,
		Currency:     ar.Currency,
		LastFour:     ar.LastFour,
	}, nil
}

// GetAccountBalance derives the account's snapshot balance from the most
// recent transaction that reports a running balance. The source has no
// balance endpoint on this surface.
func (c *Client) GetAccountBalance(ctx context.Context, accountID, currency string) (*models.AccountBalance, error) {
	page, err := c.ListTransactions(ctx, accountID, "", balanceLookback)
	if err != nil {
		return nil, err
	}

	if currency == "" {
		currency = "USD"
	}

	for _, txn := range page.Transactions {
		if txn.RunningBalance != nil {
			return &models.AccountBalance{Currency: currency, Amount: *txn.RunningBalance}, nil
		}
	}

	return &models.AccountBalance{Currency: currency}, nil
}

// ListTransactions retrieves one page of transactions, most recent first.
// fromID is the rolling pagination cursor; empty requests the first page.
// Records that fail validation are reported in the page's Skipped list.
// Pending transactions are returned with their status intact; filtering
// them is the fetcher's job.
func (c *Client) ListTransactions(ctx context.Context, accountID, fromID string, count int) (*interfaces.TransactionPage, error) {
	params := url.Values{}
	if count > 0 {
		params.Set("count", fmt.Sprintf("%d", count))
	}
	if fromID != "" {
		params.Set("from_id", fromID)
	}

	body, err := c.get(ctx, fmt.Sprintf("/accounts/%s/transactions", accountID), params)
	if err != nil {
		return nil, err
	}

	var raw []transactionResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	page := &interfaces.TransactionPage{
		PageComplete: count <= 0 || len(raw) >= count,
	}

	for _, tr := range raw {
		txn, err := tr.toModel()
		if err != nil {
			c.logger.Warn().Str("transaction_id", tr.ID).Err(err).Msg("Skipping invalid transaction record")
			page.Skipped = append(page.Skipped, interfaces.SkippedRecord{ID: tr.ID, Reason: err.Error()})
			continue
		}
		page.Transactions = append(page.Transactions, *txn)
	}

	return page, nil
}

type transactionResponse struct {
	ID             string  `json:"id"`
	AccountID      string  `json:"account_id"`
	Amount         string  `json:"amount"`
	Date           string  `json:"date"`
	Description    string  `json:"description"`
	Status         string  `json:"status"`
	Type           string  `json:"type"`
	RunningBalance *string `json:"running_balance"`
	Details        struct {
		Category         string `json:"category"`
		ProcessingStatus string `json:"processing_status"`
		Counterparty     *struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"counterparty"`
	} `json:"details"`
}

func (tr transactionResponse) toModel() (*models.Transaction, error) {
	if tr.ID == "" {
		return nil, fmt.Errorf("missing transaction id")
	}
	if tr.AccountID == "" {
		return nil, fmt.Errorf("missing account id")
	}

	amount, err := decimalFromString(tr.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", tr.Amount, err)
	}

	date, err := models.ParseDate(tr.Date)
	if err != nil {
		return nil, err
	}

	status := models.TransactionStatus(tr.Status)
	if status != models.TransactionStatusPosted && status != models.TransactionStatusPending {
		return nil, fmt.Errorf("unknown transaction status %q", tr.Status)
	}

	txn := &models.Transaction{
		ID:          tr.ID,
		AccountID:   tr.AccountID,
		Amount:      amount,
		Date:        date,
		Description: tr.Description,
		Status:      status,
		Type:        tr.Type,
		Details: models.TransactionDetails{
			ProcessingStatus: tr.Details.ProcessingStatus,
		},
	}

	if tr.RunningBalance != nil && *tr.RunningBalance != "" {
		rb, err := decimalFromString(*tr.RunningBalance)
		if err != nil {
			return nil, fmt.Errorf("invalid running balance %q: %w", *tr.RunningBalance, err)
		}
		txn.RunningBalance = &rb
	}

	if tr.Details.Category != "" {
		category := models.DetailCategory(tr.Details.Category)
		if !category.Valid() {
			return nil, fmt.Errorf("unknown category %q", tr.Details.Category)
		}
		txn.Details.Category = &category
	}

	if cp := tr.Details.Counterparty; cp != nil && cp.Name != "" {
		cpType := models.CounterpartyType(cp.Type)
		if cpType != models.CounterpartyOrganization && cpType != models.CounterpartyPerson {
			cpType = models.CounterpartyOrganization
		}
		txn.Details.Counterparty = &models.Counterparty{Name: cp.Name, Type: cpType}
	}

	return txn, nil
}

func decimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// Ensure Client implements LedgerClient
var _ interfaces.LedgerClient = (*Client)(nil)
