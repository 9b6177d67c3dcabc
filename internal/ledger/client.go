package ledger

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the client-side deadline of a single ledger request.
const DefaultTimeout = 10 * time.Second

// Observer receives the outcome of every ledger request.
type Observer interface {
	ObserveLedgerRequest(operation, outcome string, duration time.Duration)
}

// Client provides access to the ledger application's GraphQL endpoint.
type Client struct {
	endpoint      string
	applicationID string
	chainID       string
	url           string

	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	observer   Observer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new ledger client.
func NewClient(endpoint, applicationID, chainID string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:      strings.TrimRight(endpoint, "/"),
		applicationID: applicationID,
		chainID:       chainID,
		httpClient:    &http.Client{},
		timeout:       DefaultTimeout,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.url = c.endpoint + "/chains/" + c.chainID + "/applications/" + c.applicationID

	return c
}

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithObserver sets the request observer (metrics).
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// URL returns the application endpoint all requests are sent to.
func (c *Client) URL() string {
	return c.url
}

// Endpoint returns the configured service endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}
