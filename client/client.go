// Package client is the Go SDK for an authgate HTTP deployment.
//
// The client keeps the session cookie in an internal jar, so a
// SignIn followed by Session or SignOut just works:
//
//	c, _ := client.New("https://auth.example.com")
//	if _, err := c.SignIn(ctx, "a@b.com", "correcthorse"); err != nil {
//		return err
//	}
//	sess, err := c.Session(ctx)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout  = 30 * time.Second
	contentTypeJSON = "application/json"
	sdkUserAgent    = "authgate-go/1.0.0"
)

// Client talks to an authgate server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. If the client has no
// cookie jar one is attached, since the session token travels in a
// cookie.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}

	return c, nil
}

/* ==== OPERATIONS ==== */

// User is the wire representation of an account.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// Session describes the authenticated state returned by SignIn and
// Session.
type Session struct {
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignUp registers a new account and returns its id.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (string, error) {
	var out struct {
		UserID string `json:"user_id"`
	}
	err := c.post(ctx, "/v1/sign-up", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.UserID, nil
}

// SignIn authenticates and stores the session cookie in the jar.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var out Session
	err := c.post(ctx, "/v1/sign-in", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Session returns the current authenticated session, or an *Error
// with IsUnauthorized() true when not signed in.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var out Session
	if err := c.get(ctx, "/v1/session", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut revokes the current session. Succeeds even if no session
// is active.
func (c *Client) SignOut(ctx context.Context) error {
	return c.post(ctx, "/v1/sign-out", nil, nil)
}

// VerifyEmail spends a verification token.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.post(ctx, "/v1/verify-email", map[string]string{"token": token}, nil)
}

// RequestPasswordReset asks the server to send a reset token. The
// server answers identically for known and unknown addresses.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.post(ctx, "/v1/password-reset/request", map[string]string{"email": email}, nil)
}

// ChangePassword replaces the signed-in user's password. All sessions
// are revoked on success, so the client must sign in again.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	return c.post(ctx, "/v1/password", map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	}, nil)
}

// ConfirmPasswordReset spends a reset token and sets a new password.
func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	return c.post(ctx, "/v1/password-reset/confirm", map[string]string{
		"token":        token,
		"new_password": newPassword,
	}, nil)
}

/* ==== TRANSPORT ==== */

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", sdkUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, result)
}
