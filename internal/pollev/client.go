// Package pollev provides a client for the PollEverywhere participant API.
package pollev

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/tario-you/pollevbot/internal/models"
)

const (
	// DefaultTimeout bounds short-lived requests (login, poll data,
	// submissions). Long-poll requests carry their own deadline.
	DefaultTimeout = 10 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// DefaultUserAgent mirrors a desktop browser; the provider rejects
	// obviously non-browser agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client is a PollEverywhere participant API client. It owns the
// cookie jar that carries the authenticated session.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	userAgent  string
	timeout    time.Duration
	referer    string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithEndpoints sets custom provider endpoints.
func WithEndpoints(endpoints Endpoints) ClientOption {
	return func(c *Client) {
		c.endpoints = endpoints
	}
}

// WithHTTPClient sets a custom HTTP client. The client's jar is
// replaced so the session cookies survive.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the timeout for short-lived requests.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates a new PollEverywhere client with a fresh cookie jar.
func NewClient(opts ...ClientOption) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		endpoints: DefaultEndpoints(),
		// No client-level timeout: long-poll requests outlive any
		// sane global value, so every request carries a context
		// deadline instead.
		httpClient: &http.Client{Jar: jar},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		userAgent:  DefaultUserAgent,
		timeout:    DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Jar == nil {
		c.httpClient.Jar = jar
	}

	return c, nil
}

// Endpoints returns the endpoint table the client was built with.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// APIError represents a non-success response from the provider.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pollev API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// IsAuthFailure reports whether the response means the session is no
// longer accepted.
func (e *APIError) IsAuthFailure() bool {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "not authenticated")
}

// timestamp returns the current time in milliseconds, used for
// cache-busting query parameters.
func timestamp() int64 {
	return time.Now().UnixMilli()
}

// do executes a request with the shared headers and rate limiter.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Msg("PollEv API request")
	}

	return c.httpClient.Do(req.WithContext(ctx))
}

// getJSON performs a short-lived GET and decodes the JSON body.
func (c *Client) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   req.URL.Path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// formResult is the drained outcome of a form POST. FinalURL is the
// URL after redirects, which the SSO flow inspects for auth tokens.
type formResult struct {
	StatusCode int
	Body       string
	FinalURL   *url.URL
}

// postForm performs a short-lived form POST and drains the response.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, headers map[string]string) (*formResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &formResult{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		FinalURL:   resp.Request.URL,
	}, nil
}

// CSRFToken fetches a fresh CSRF token for state-changing requests.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := c.getJSON(ctx, c.endpoints.CSRFToken(timestamp()), &payload); err != nil {
		return "", fmt.Errorf("failed to fetch CSRF token: %w", err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("CSRF endpoint returned an empty token")
	}
	return payload.Token, nil
}

// SetSessionCookies injects caller-supplied cookie pairs into the jar
// for both provider domains, without contacting the login endpoint.
// Validity is only confirmed lazily by the first watch request.
func (c *Client) SetSessionCookies(pairs map[string]string) error {
	cookies := make([]*http.Cookie, 0, len(pairs))
	for name, value := range pairs {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}

	for _, base := range []string{c.endpoints.PollevBase, c.endpoints.WWWBase} {
		baseURL, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("invalid base URL %s: %w", base, err)
		}
		c.httpClient.Jar.SetCookies(baseURL, cookies)
	}

	return nil
}

// SeedVisitorCookies generates the visitor cookies the provider's
// frontend normally creates client-side. The firehose auth endpoint
// checks for them before issuing a token.
func (c *Client) SeedVisitorCookies() error {
	return c.SetSessionCookies(map[string]string{
		"pollev_visitor": uuid.New().String(),
		"pollev_visit":   uuid.New().String(),
	})
}

// SessionCookies exports the jar's cookies for the participant domain
// as name/value pairs, for persistence across runs.
func (c *Client) SessionCookies() map[string]string {
	baseURL, err := url.Parse(c.endpoints.PollevBase)
	if err != nil {
		return nil
	}

	pairs := make(map[string]string)
	for _, cookie := range c.httpClient.Jar.Cookies(baseURL) {
		pairs[cookie.Name] = cookie.Value
	}
	return pairs
}

// WarmUp primes the session for a host: sets the Referer used by
// subsequent requests, visits the participant page and attempts
// participant registration. All failures are non-fatal; the provider
// tolerates unregistered participants on public hosts.
func (c *Client) WarmUp(ctx context.Context, host string) {
	c.referer = c.endpoints.Home(host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.referer, nil)
	if err == nil {
		if resp, err := c.do(ctx, req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		} else if c.logger != nil {
			c.logger.Debug().Err(err).Str("host", host).Msg("Host warm-up request failed")
		}
	}

	csrf, err := c.CSRFToken(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Debug().Err(err).Msg("CSRF fetch failed during warm-up")
		}
		return
	}

	if _, err := c.postForm(ctx, c.endpoints.ParticipantRegistration(host), url.Values{}, map[string]string{
		"x-csrf-token": csrf,
	}); err != nil && c.logger != nil {
		c.logger.Debug().Err(err).Str("host", host).Msg("Participant registration failed or unavailable")
	}
}

// RegistrationInfo requests a firehose token for a host. Hosts not
// affiliated with an institution can legitimately return a null
// token; the activity feed then works tokenless.
func (c *Client) RegistrationInfo(ctx context.Context, host string) (string, error) {
	endpoint := c.endpoints.RegistrationInfo(host, timestamp())

	ctxReq, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxReq, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctxReq, req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if strings.Contains(strings.ToLower(string(body)), "presenter not found") {
		return "", &models.AuthError{Reason: fmt.Sprintf("%q is not a valid poll host", host)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   req.URL.Path,
		}
	}

	var payload struct {
		FirehoseToken string `json:"firehose_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode registration info: %w", err)
	}

	return payload.FirehoseToken, nil
}

// ActivityEnvelope is one firehose long-poll response. Message holds
// a nested JSON document describing the activity, or is empty when
// the server's wait budget elapsed without news.
type ActivityEnvelope struct {
	Message             string      `json:"message"`
	LastMessageSequence json.Number `json:"last_message_sequence"`
}

// Activity issues one long-poll request against the activity feed.
// The caller bounds the hold time through ctx; the server holds the
// connection for its own wait budget before returning "no update".
func (c *Client) Activity(ctx context.Context, host, token string, sequence int64) (*ActivityEnvelope, error) {
	endpoint := c.endpoints.Activity(host, token, sequence, timestamp())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   req.URL.Path,
		}
	}

	var envelope ActivityEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode activity envelope: %w", err)
	}

	return &envelope, nil
}

// PollData fetches the participant view of a multiple-choice poll.
func (c *Client) PollData(ctx context.Context, uid string) (*models.Poll, error) {
	var poll models.Poll
	if err := c.getJSON(ctx, c.endpoints.PollData(uid), &poll); err != nil {
		return nil, err
	}
	if poll.ID == "" {
		poll.ID = uid
	}
	return &poll, nil
}

// Respond submits the chosen option for a poll.
func (c *Client) Respond(ctx context.Context, uid, optionID string) error {
	csrf, err := c.CSRFToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("option_id", optionID)
	form.Set("isPending", "true")
	form.Set("source", "pollev_page")

	result, err := c.postForm(ctx, c.endpoints.Respond(uid), form, map[string]string{
		"x-csrf-token": csrf,
	})
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}

	if result.StatusCode < 200 || result.StatusCode > 299 {
		return &APIError{
			StatusCode: result.StatusCode,
			Message:    result.Body,
			Endpoint:   c.endpoints.Respond(uid),
		}
	}

	return nil
}
