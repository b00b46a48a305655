// Package kis provides a client for the Korea Investment & Securities
// open API: OAuth token exchange and daily bar queries.
package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"krx-collector/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://openapivts.koreainvestment.com:29443"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second

	dailyBarTrID = "FHKST03010100"
)

// Client calls the KIS REST API. All requests pass through a shared rate
// limiter; the provider enforces a hard per-second call ceiling.
type Client struct {
	baseURL    string
	appKey     string
	appSecret  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimiter sets the shared rate limiter. Pass the same limiter to
// every component that talks to the provider.
func WithRateLimiter(limiter *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new KIS API client.
func NewClient(appKey, appSecret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		appKey:     appKey,
		appSecret:  appSecret,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IssueToken performs the credential exchange and returns a bearer token.
// A response without an access token is an error; credentials cannot be
// partially valid, so callers treat this as fatal for the whole run.
func (c *Client) IssueToken(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(tokenRequest{
		GrantType: "client_credentials",
		AppKey:    c.appKey,
		AppSecret: c.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newAPIError(resp, "/oauth2/tokenP")
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", ErrTokenMissing
	}

	return tr.AccessToken, nil
}

// FetchDailyBars queries daily bars for one instrument over [from, to].
// The provider caps one request at 100 calendar days; callers segment wider
// windows before calling. Malformed numeric fields in a row coerce to zero;
// rows with an unparseable date are dropped.
func (c *Client) FetchDailyBars(ctx context.Context, code string, from, to time.Time, token string) ([]*domain.PriceBar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	const path = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"

	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", code)
	params.Set("FID_INPUT_DATE_1", domain.FormatCompact(from))
	params.Set("FID_INPUT_DATE_2", domain.FormatCompact(to))
	params.Set("FID_PERIOD_DIV_CODE", "D")
	params.Set("FID_ORG_ADJ_PRC", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create daily bar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", dailyBarTrID)

	c.logger.Debug("daily bar request",
		zap.String("code", code),
		zap.String("from", domain.FormatCompact(from)),
		zap.String("to", domain.FormatCompact(to)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute daily bar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp, path)
	}

	var dr dailyBarResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode daily bar response: %w", err)
	}
	if dr.ResultCode != "0" {
		return nil, &ResultError{Code: dr.ResultCode, Message: dr.Message}
	}

	bars := make([]*domain.PriceBar, 0, len(dr.Output2))
	for _, row := range dr.Output2 {
		date, err := domain.ParseCompact(row.Date)
		if err != nil {
			c.logger.Warn("drop bar with malformed date",
				zap.String("code", code), zap.String("date", row.Date))
			continue
		}
		bars = append(bars, &domain.PriceBar{
			Code:   code,
			Date:   date,
			Open:   row.Open.Float64(),
			High:   row.High.Float64(),
			Low:    row.Low.Float64(),
			Close:  row.Close.Float64(),
			Volume: row.Volume.Int64(),
		})
	}

	return bars, nil
}

// newAPIError builds an APIError from a non-200 response, draining the body
// for the message.
func newAPIError(resp *http.Response, endpoint string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		Endpoint:   endpoint,
	}
}
