// Package client is the REST client for the ticket API. It is the
// pagination source that seeds ticket collections.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gotrs-io/gotrs-livesync/internal/auth"
	"github.com/gotrs-io/gotrs-livesync/internal/version"
)

// Client represents the ticket API client
type Client struct {
	httpClient *resty.Client
	baseURL    string
	auth       auth.Authenticator
	logger     zerolog.Logger

	Tickets *TicketsService
}

// Config represents client configuration
type Config struct {
	BaseURL    string
	Auth       auth.Authenticator
	UserAgent  string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	Logger     zerolog.Logger
	Debug      bool
}

// NewClient creates a new ticket API client
func NewClient(config Config) *Client {
	if config.UserAgent == "" {
		config.UserAgent = version.UserAgent()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryWait == 0 {
		config.RetryWait = 200 * time.Millisecond
	}
	if config.Auth == nil {
		config.Auth = auth.NewNoAuth()
	}

	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(config.RetryWait).
		SetRetryMaxWaitTime(10 * config.RetryWait).
		AddRetryCondition(shouldRetry).
		SetHeader("User-Agent", config.UserAgent).
		SetHeader("Accept", "application/json")

	if config.Debug {
		httpClient.SetDebug(true)
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    config.BaseURL,
		auth:       config.Auth,
		logger:     config.Logger,
	}
	c.Tickets = &TicketsService{client: c}

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if req.Header.Get("X-Request-ID") == "" {
			req.SetHeader("X-Request-ID", uuid.New().String())
		}
		return c.auth.Apply(req.Header)
	})

	return c
}

// shouldRetry retries transport failures and 5xx responses, but not a
// cancelled or expired context.
func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp != nil && resp.StatusCode() >= 500
}

// SetAuth updates the client's authentication
func (c *Client) SetAuth(authenticator auth.Authenticator) {
	c.auth = authenticator
}

// Get performs a GET request and decodes the JSON body into result
func (c *Client) Get(ctx context.Context, path string, query map[string]string, result interface{}) error {
	req := c.httpClient.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	if result != nil {
		req.SetResult(result)
	}

	start := time.Now()
	resp, err := req.Get(path)
	if err != nil {
		return &NetworkError{Operation: "GET", URL: c.baseURL + path, Err: err}
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("latency", time.Since(start)).
		Str("request_id", resp.Request.Header.Get("X-Request-ID")).
		Msg("ticket API request")

	return c.handleError(resp)
}

// handleError converts a non-success response into an APIError
func (c *Client) handleError(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && (body.Error != "" || body.Message != "") {
		msg := body.Error
		details := body.Message
		if msg == "" {
			msg, details = body.Message, ""
		}
		return NewAPIError(resp.StatusCode(), msg, body.Code, details)
	}

	switch resp.StatusCode() {
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 429:
		return ErrRateLimited
	case 500:
		return ErrInternal
	default:
		return NewAPIError(resp.StatusCode(), "Unknown error", "", string(resp.Body()))
	}
}

// Ping checks if the API is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.Get(ctx, "/api/v1/health", nil, nil)
}
