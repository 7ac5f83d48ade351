package pocketsmith

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/dvloznov/finance-runway/internal/logger"
	"github.com/go-resty/resty/v2"
)

// ErrUnexpectedStatus marks a non-success HTTP response from the API.
var ErrUnexpectedStatus = errors.New("unexpected status")

const (
	defaultTimeout = 30 * time.Second
	// defaultMaxPages bounds pagination in case the API never returns an
	// empty page.
	defaultMaxPages = 10000
)

// ErrTooManyPages is returned when transaction pagination does not end
// within the page limit.
var ErrTooManyPages = errors.New("too many pages")

// StatusError carries the status code and body of a failed request.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s %d: %s", e.Method, e.URL, ErrUnexpectedStatus, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Client fetches accounts and transactions for one PocketSmith user.
type Client struct {
	http     *resty.Client
	userID   string
	perPage  int
	maxPages int
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithPerPage sets the per_page query parameter for transaction pages.
func WithPerPage(n int) Option {
	return func(c *Client) { c.perPage = n }
}

// WithMaxPages limits how many transaction pages are requested before
// FetchTransactions gives up with ErrTooManyPages.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// NewClient creates a client authenticated with the developer key. The
// client never retries; failed requests surface to the caller.
func NewClient(baseURL, apiKey, userID string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("X-Developer-Key", apiKey).
		SetRetryCount(0).
		SetTimeout(defaultTimeout)

	c := &Client{
		http:     rc,
		userID:   userID,
		maxPages: defaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAccounts returns all accounts of the user. The endpoint is not paginated.
func (c *Client) FetchAccounts(ctx context.Context) ([]domain.AccountRaw, error) {
	log := logger.FromContext(ctx)

	path := fmt.Sprintf("/users/%s/accounts", c.userID)
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("FetchAccounts: sending request: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("FetchAccounts: %w", statusError(resp))
	}

	var accounts []domain.AccountRaw
	if err := json.Unmarshal(resp.Body(), &accounts); err != nil {
		return nil, fmt.Errorf("FetchAccounts: decoding response: %w", err)
	}

	log.Info().Int("count", len(accounts)).Msg("Fetched accounts")
	return accounts, nil
}

// FetchTransactions returns all debit, categorised transactions in window,
// concatenating pages in server order. Pagination ends on an empty page or
// when the API reports the page is out of range. A listing that is still
// returning rows after the page limit fails with ErrTooManyPages rather than
// returning a partial result.
func (c *Client) FetchTransactions(ctx context.Context, window domain.DateRange) ([]domain.TransactionRaw, error) {
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("FetchTransactions: %w", err)
	}
	log := logger.FromContext(ctx)

	path := fmt.Sprintf("/users/%s/transactions", c.userID)
	params := map[string]string{
		"start_date":    window.Start.String(),
		"end_date":      window.End.String(),
		"uncategorised": "0",
		"type":          "debit",
	}
	if c.perPage > 0 {
		params["per_page"] = strconv.Itoa(c.perPage)
	}

	var all []domain.TransactionRaw
	done := false
	for page := 1; page <= c.maxPages; page++ {
		log.Debug().Int("page", page).Msg("Fetching transactions page")

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetQueryParam("page", strconv.Itoa(page)).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("FetchTransactions: page %d: sending request: %w", page, err)
		}
		if !resp.IsSuccess() {
			if isOutOfRange(resp) {
				log.Debug().Int("page", page).Msg("Transactions page out of range")
				done = true
				break
			}
			return nil, fmt.Errorf("FetchTransactions: page %d: %w", page, statusError(resp))
		}

		var batch []domain.TransactionRaw
		if err := json.Unmarshal(resp.Body(), &batch); err != nil {
			return nil, fmt.Errorf("FetchTransactions: page %d: decoding response: %w", page, err)
		}
		if len(batch) == 0 {
			done = true
			break
		}
		all = append(all, batch...)
	}
	if !done {
		return nil, fmt.Errorf("FetchTransactions: exceeded %d pages: %w", c.maxPages, ErrTooManyPages)
	}

	log.Info().
		Str("start_date", window.Start.String()).
		Str("end_date", window.End.String()).
		Int("count", len(all)).
		Msg("Fetched transactions")
	return all, nil
}

func statusError(resp *resty.Response) *StatusError {
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode(),
		Body:       strings.TrimSpace(string(resp.Body())),
	}
}

// isOutOfRange recognises the API's end-of-pagination response: a 400 whose
// error message mentions the page being out of range.
func isOutOfRange(resp *resty.Response) bool {
	if resp.StatusCode() != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(string(resp.Body())), "out of range")
}
