package netatmo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the production API root. Overridable for tests.
const DefaultBaseURL = "https://api.netatmo.com/api/"

const (
	endpointHomesData         = "homesdata"
	endpointHomeStatus        = "homestatus"
	endpointSetRoomThermpoint = "setroomthermpoint"
	endpointSetThermMode      = "setthermmode"
)

const (
	maxRetries     = 3
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
	requestTimeout = 30 * time.Second

	rateLimitWindow      = 10 * time.Second
	rateLimitMaxRequests = 40
	// Margin added on top of a computed rate limit wait so the oldest
	// stamp has definitely left the window when we proceed.
	rateLimitSlack = 500 * time.Millisecond
)

// Vendor error codes that indicate a transient condition worth retrying:
// internal error, timeout, operation failed, maintenance.
var transientErrorCodes = map[string]bool{
	"9":  true,
	"10": true,
	"13": true,
	"26": true,
}

// TokenSource supplies bearer credentials for each request. Implemented by
// the token manager.
type TokenSource interface {
	// EnsureValid refreshes the token when it is expired or missing.
	EnsureValid(ctx context.Context) error
	// AccessToken returns the current token. Only meaningful after a
	// successful EnsureValid.
	AccessToken() string
}

// Config holds client settings.
type Config struct {
	// BaseURL of the vendor API. Defaults to DefaultBaseURL and must end
	// with a trailing slash.
	BaseURL string
}

// Client talks to the vendor thermostat API. All requests go through a
// shared retry loop with exponential backoff and a client-side sliding
// window rate limiter, so a Client is safe for concurrent use.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger

	mu                  sync.Mutex
	requestTimes        []time.Time
	consecutiveFailures int

	// Seams for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client using the given token source.
func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With("component", "netatmo"),
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// GetHomesData fetches the account structure: homes, rooms, modules and
// schedules.
func (c *Client) GetHomesData(ctx context.Context) (*HomesData, error) {
	env, err := c.request(ctx, endpointHomesData, nil)
	if err != nil {
		return nil, err
	}
	var data HomesData
	if err := json.Unmarshal(env.Body, &data); err != nil {
		return nil, newAPIError(0, "", fmt.Sprintf("decoding homesdata body: %v", err))
	}
	return &data, nil
}

// GetHomeStatus fetches the live room and module state of one home.
func (c *Client) GetHomeStatus(ctx context.Context, homeID string) (*HomeStatus, error) {
	params := url.Values{}
	params.Set("home_id", homeID)

	env, err := c.request(ctx, endpointHomeStatus, params)
	if err != nil {
		return nil, err
	}
	var status HomeStatus
	if err := json.Unmarshal(env.Body, &status); err != nil {
		return nil, newAPIError(0, "", fmt.Sprintf("decoding homestatus body: %v", err))
	}
	return &status, nil
}

// SetRoomThermpoint changes the setpoint of one room. temp is required by
// the vendor for manual mode and endtime optionally bounds the override.
// The raw envelope is returned so callers can pass the vendor reply on
// unchanged.
func (c *Client) SetRoomThermpoint(ctx context.Context, homeID, roomID, mode string, temp *float64, endtime *int64) (*Envelope, error) {
	params := url.Values{}
	params.Set("home_id", homeID)
	params.Set("room_id", roomID)
	params.Set("mode", mode)
	if temp != nil {
		params.Set("temp", strconv.FormatFloat(*temp, 'f', -1, 64))
	}
	if endtime != nil {
		params.Set("endtime", strconv.FormatInt(*endtime, 10))
	}
	return c.request(ctx, endpointSetRoomThermpoint, params)
}

// SetThermMode changes the heating mode of a whole home. scheduleID
// selects the active schedule when mode is "schedule"; endtime bounds
// away and frost guard periods.
func (c *Client) SetThermMode(ctx context.Context, homeID, mode string, endtime *int64, scheduleID *string) (*Envelope, error) {
	params := url.Values{}
	params.Set("home_id", homeID)
	params.Set("mode", mode)
	if endtime != nil {
		params.Set("endtime", strconv.FormatInt(*endtime, 10))
	}
	if scheduleID != nil {
		params.Set("schedule_id", *scheduleID)
	}
	return c.request(ctx, endpointSetThermMode, params)
}

// GetSchedules returns the heating schedules of one home. The vendor has
// no dedicated endpoint, so this filters a homesdata response. Unknown
// home ids yield an empty list, not an error.
func (c *Client) GetSchedules(ctx context.Context, homeID string) ([]Schedule, error) {
	data, err := c.GetHomesData(ctx)
	if err != nil {
		return nil, err
	}
	if home := data.Home(homeID); home != nil {
		return home.Schedules, nil
	}
	return []Schedule{}, nil
}

// ConsecutiveFailures returns how many requests in a row have ended in a
// final failure. Any success resets it.
func (c *Client) ConsecutiveFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveFailures
}

// ResetFailureCount clears the consecutive failure counter.
func (c *Client) ResetFailureCount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

// request runs one logical API call through the rate limiter and retry
// loop and returns the decoded ok envelope.
func (c *Client) request(ctx context.Context, endpoint string, params url.Values) (*Envelope, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.waitForRateLimit(ctx); err != nil {
			return nil, err
		}

		// Token refresh failures are not retried here. The manager has
		// its own error handling and a dead refresh token needs operator
		// action, not another attempt.
		if err := c.tokens.EnsureValid(ctx); err != nil {
			return nil, newAuthError(0, fmt.Sprintf("failed to get access token: %v", err))
		}

		status, body, header, err := c.do(ctx, endpoint, params)
		if err != nil {
			lastErr = err
			if attempt < maxRetries {
				if serr := c.backoffSleep(ctx, endpoint, attempt, fmt.Sprintf("transport error: %v", err)); serr != nil {
					return nil, serr
				}
				continue
			}
			break
		}

		switch {
		case status == http.StatusUnauthorized:
			c.recordFailure()
			return nil, newAuthError(status, "unauthorized, token may be revoked")

		case status == http.StatusForbidden:
			// A 403 usually means lost consent, but the vendor also uses
			// it for a handful of transient server conditions.
			if code := envelopeErrorCode(body); transientErrorCodes[code] && attempt < maxRetries {
				if serr := c.backoffSleep(ctx, endpoint, attempt, "transient error behind 403, code "+code); serr != nil {
					return nil, serr
				}
				continue
			}
			c.recordFailure()
			return nil, newAuthError(status, "forbidden, re-authentication required")

		case status == http.StatusTooManyRequests:
			if attempt < maxRetries {
				wait := retryAfterDelay(header)
				c.logger.Warn("vendor rate limit hit, honoring Retry-After",
					"endpoint", endpoint, "attempt", attempt+1, "wait", wait.String())
				if serr := c.sleep(ctx, wait); serr != nil {
					return nil, serr
				}
				continue
			}
			c.recordFailure()
			return nil, &APIError{class: ErrRateLimited, StatusCode: status,
				Message: fmt.Sprintf("rate limited after %d retries", maxRetries)}

		case status >= 500:
			if attempt < maxRetries {
				if serr := c.backoffSleep(ctx, endpoint, attempt, fmt.Sprintf("server error %d", status)); serr != nil {
					return nil, serr
				}
				continue
			}
			c.recordFailure()
			return nil, newAPIError(status, "", fmt.Sprintf("server error after %d retries", maxRetries))

		case status >= 400:
			c.recordFailure()
			return nil, newAPIError(status, "", truncateBody(body))
		}

		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			c.recordFailure()
			return nil, newAPIError(status, "", fmt.Sprintf("invalid JSON response: %v", err))
		}

		if env.Status != "ok" {
			code, message := env.errorInfo()
			if transientErrorCodes[code] && attempt < maxRetries {
				if serr := c.backoffSleep(ctx, endpoint, attempt, "transient vendor error, code "+code); serr != nil {
					return nil, serr
				}
				continue
			}
			c.recordFailure()
			return nil, newAPIError(status, code, message)
		}

		c.resetFailures()
		return &env, nil
	}

	// Only transport errors fall through the loop.
	c.recordFailure()
	if isTimeoutErr(lastErr) {
		return nil, &APIError{class: ErrTimeout,
			Message: fmt.Sprintf("request to %s timed out after %d retries", endpoint, maxRetries)}
	}
	return nil, newAPIError(0, "", fmt.Sprintf("request to %s failed after %d retries: %v", endpoint, maxRetries, lastErr))
}

// do performs a single HTTP attempt and returns the raw response.
func (c *Client) do(ctx context.Context, endpoint string, params url.Values) (int, []byte, http.Header, error) {
	var reqBody io.Reader
	if len(params) > 0 {
		reqBody = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, reqBody)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.AccessToken())
	if len(params) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, data, resp.Header, nil
}

// waitForRateLimit blocks until the sliding window has room, then records
// the request. The stamp is taken after the wait so the window reflects
// when requests actually go out.
func (c *Client) waitForRateLimit(ctx context.Context) error {
	c.mu.Lock()
	now := c.now()
	kept := c.requestTimes[:0]
	for _, ts := range c.requestTimes {
		if now.Sub(ts) < rateLimitWindow {
			kept = append(kept, ts)
		}
	}
	c.requestTimes = kept

	var wait time.Duration
	if len(c.requestTimes) >= rateLimitMaxRequests {
		wait = rateLimitWindow - now.Sub(c.requestTimes[0]) + rateLimitSlack
	}
	c.mu.Unlock()

	if wait > 0 {
		c.logger.Warn("client rate limit reached, waiting", "wait", wait.String())
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.requestTimes = append(c.requestTimes, c.now())
	c.mu.Unlock()
	return nil
}

// backoffSleep logs the retry and sleeps for the exponential delay of the
// given attempt.
func (c *Client) backoffSleep(ctx context.Context, endpoint string, attempt int, reason string) error {
	delay := backoffDelay(attempt)
	c.logger.Warn("request failed, retrying",
		"endpoint", endpoint, "attempt", attempt+1, "backoff", delay.String(), "reason", reason)
	return c.sleep(ctx, delay)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.consecutiveFailures++
	c.mu.Unlock()
}

func (c *Client) resetFailures() {
	c.mu.Lock()
	c.consecutiveFailures = 0
	c.mu.Unlock()
}

// backoffDelay returns initialBackoff doubled per attempt, capped at
// maxBackoff: 2s, 4s, 8s, ...
func backoffDelay(attempt int) time.Duration {
	delay := initialBackoff << uint(attempt)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// retryAfterDelay reads the Retry-After header, defaulting to 60s when it
// is missing or malformed, capped at maxBackoff. Header lookup is case
// insensitive per http.Header.Get.
func retryAfterDelay(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		raw = "60"
	}
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs < 0 {
		secs = 60
	}
	delay := time.Duration(secs) * time.Second
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// envelopeErrorCode pulls the vendor error code out of a non-2xx body,
// returning "" when the body is not a recognizable envelope.
func envelopeErrorCode(body []byte) string {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return ""
	}
	return string(env.Error.Code)
}

func truncateBody(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func isTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
