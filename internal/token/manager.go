package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTokenURL is the production OAuth2 token endpoint.
const DefaultTokenURL = "https://api.netatmo.com/oauth2/token"

// Scopes requested when the application was authorized. Kept here for the
// setup documentation and the check tool; refresh grants do not resend
// them.
const Scopes = "read_thermostat write_thermostat"

const (
	requestTimeout = 30 * time.Second
	// Refresh this long before the vendor expiry so a token never goes
	// stale mid-request.
	expiryMargin = 300 * time.Second
)

var (
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrRefreshFailed  = errors.New("token refresh failed")
)

// Token is a bearer credential together with its rotation partner.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the token can still be used at the given time.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// Storage persists tokens across restarts. Implemented by the storage
// layer.
type Storage interface {
	// GetToken returns the stored token, or nil when none has been saved.
	GetToken(ctx context.Context) (*Token, error)
	// SaveToken stores the token, replacing any previous one.
	SaveToken(ctx context.Context, tok *Token) error
}

// Config holds the OAuth2 application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	// TokenURL defaults to DefaultTokenURL.
	TokenURL string
	// SeedRefreshToken bootstraps the very first refresh when storage is
	// empty. After that the rotated token in storage wins.
	SeedRefreshToken string
}

// Manager caches an access token in memory, persists rotations and
// refreshes on demand. Safe for concurrent use; concurrent callers that
// find the token expired perform a single refresh between them.
type Manager struct {
	clientID     string
	clientSecret string
	tokenURL     string
	seedRefresh  string
	storage      Storage
	httpClient   *http.Client
	logger       *slog.Logger

	mu      sync.RWMutex
	current *Token

	now func() time.Time
}

// NewManager creates a Manager backed by the given storage.
func NewManager(cfg Config, storage Storage, logger *slog.Logger) *Manager {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     cfg.TokenURL,
		seedRefresh:  cfg.SeedRefreshToken,
		storage:      storage,
		httpClient:   &http.Client{Timeout: requestTimeout},
		logger:       logger.With("component", "token"),
		now:          time.Now,
	}
}

// EnsureValid makes sure a usable access token is loaded, refreshing it
// when expired or missing. Double-checked so the common case is a single
// read lock.
func (m *Manager) EnsureValid(ctx context.Context) error {
	m.mu.RLock()
	valid := m.current.Valid(m.now())
	m.mu.RUnlock()
	if valid {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check: another caller may have refreshed while we waited.
	if m.current.Valid(m.now()) {
		return nil
	}

	refresh := ""
	if m.current != nil {
		refresh = m.current.RefreshToken
	}

	// Storage wins over memory: a previous run may have rotated further
	// than what we hold.
	stored, err := m.storage.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("loading stored token: %w", err)
	}
	if stored != nil {
		if stored.Valid(m.now()) {
			m.current = stored
			return nil
		}
		if stored.RefreshToken != "" {
			refresh = stored.RefreshToken
		}
	}
	if refresh == "" {
		refresh = m.seedRefresh
	}
	if refresh == "" {
		return ErrNoRefreshToken
	}

	tok, err := m.refresh(ctx, refresh)
	if err != nil {
		return err
	}
	m.current = tok

	if err := m.storage.SaveToken(ctx, tok); err != nil {
		// Keep serving from memory; only the rotation is lost on restart.
		m.logger.Error("failed to persist refreshed token", "error", err)
	}
	return nil
}

// AccessToken returns the cached access token, or "" when none is loaded.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

// Current returns a copy of the cached token for diagnostics, or nil.
func (m *Manager) Current() *Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	tok := *m.current
	return &tok
}

// refresh exchanges the refresh token for a new token pair. The vendor
// rotates refresh tokens on every exchange.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrRefreshFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRefreshFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrRefreshFailed, err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: response missing access_token", ErrRefreshFailed)
	}
	// Some responses omit the rotated refresh token; the old one stays
	// good in that case.
	if payload.RefreshToken == "" {
		payload.RefreshToken = refreshToken
	}

	expiresAt := m.now().Add(time.Duration(payload.ExpiresIn)*time.Second - expiryMargin)
	m.logger.Info("access token refreshed", "expires_at", expiresAt.Format(time.RFC3339))

	return &Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
