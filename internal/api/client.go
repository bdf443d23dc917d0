// Package api is the REST client for the backend. It owns bearer-token
// authentication, the refresh-and-retry-once policy on 401 responses, and
// the translation of error envelopes into typed errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
)

// Config holds configuration for the REST client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the default REST client configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Client is the authenticated REST client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	tokens models.TokenPair
}

// NewClient creates a REST client for the given backend.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetTokens installs the bearer credentials, e.g. restored from the local
// cache.
func (c *Client) SetTokens(tokens models.TokenPair) {
	c.mu.Lock()
	c.tokens = tokens
	c.mu.Unlock()
}

// Tokens returns the current bearer credentials.
func (c *Client) Tokens() models.TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// TokenExpiringWithin reports whether the access token's exp claim falls
// inside the given window. The claim is read without signature
// verification; the client never needs to trust it, only to decide when a
// proactive refresh is worthwhile.
func (c *Client) TokenExpiringWithin(window time.Duration) bool {
	c.mu.Lock()
	token := c.tokens.AccessToken
	c.mu.Unlock()
	if token == "" {
		return true
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return time.Until(exp.Time) < window
}

// do runs one JSON request with the bearer header. A 401 triggers a token
// refresh and a single retry; a 401 on the retry is a session-expired
// error, at which point the caller logs the user out.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	err := c.doOnce(ctx, method, endpoint, body, out)
	if !isUnauthorized(err) {
		return err
	}

	if refreshErr := c.refresh(ctx); refreshErr != nil {
		log.Warn().Err(refreshErr).Msg("token refresh failed")
		return ErrSessionExpired
	}

	err = c.doOnce(ctx, method, endpoint, body, out)
	if isUnauthorized(err) {
		return ErrSessionExpired
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Tokens().AccessToken; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// refresh exchanges the refresh token for a new token pair.
func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.tokens.RefreshToken
	c.mu.Unlock()
	if refreshToken == "" {
		return fmt.Errorf("no refresh token")
	}

	var pair models.TokenPair
	if err := c.doOnce(ctx, http.MethodPost, "/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, &pair); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}

	c.SetTokens(pair)
	log.Debug().Msg("access token refreshed")
	return nil
}
