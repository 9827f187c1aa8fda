// Package backend is the REST client for the application's own session API.
// It exchanges credentials or the server-held refresh cookie for an access
// token plus user record, and classifies every failure into a closed set of
// error kinds.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// User is the backend's user record. Role is empty until the backend
// handshake has completed; consumers must treat an empty role as "not yet
// authorized", never as a default.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// Session is a backend session: the access token plus the user it belongs to.
type Session struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

// RegisterParams creates a backend account. Provider is set when the account
// is born from a federated identity during password binding.
type RegisterParams struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	Provider        string `json:"provider,omitempty"`
}

// Config carries the client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the session API. The refresh credential is an httpOnly
// cookie, so the client holds a cookie jar; callers never see the credential.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("[backend.NewClient] BaseURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "[backend.NewClient] cookiejar.New")
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Jar: jar, Timeout: cfg.Timeout},
		log:     log.With().Str("component", "backend").Logger(),
	}, nil
}

// Login exchanges email/password for a backend session and sets the refresh
// cookie as a side effect.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]string{"email": email, "password": password}
	session, err := c.postSession(ctx, "/login", payload, ErrCredentialRejected)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Login] postSession")
	}
	return session, nil
}

// Register creates a backend account and signs it in.
func (c *Client) Register(ctx context.Context, params RegisterParams) (*Session, error) {
	session, err := c.postSession(ctx, "/register", params, ErrRegistrationRejected)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Register] postSession")
	}
	return session, nil
}

// RefreshToken silently re-establishes the backend session from the refresh
// cookie. No body: the credential is entirely out of band.
func (c *Client) RefreshToken(ctx context.Context) (*Session, error) {
	session, err := c.postSession(ctx, "/refresh-token", nil, ErrCredentialRejected)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.RefreshToken] postSession")
	}
	return session, nil
}

// Logout asks the server to invalidate the refresh credential. Best effort;
// the caller has already dropped its local session by the time this runs.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.post(ctx, "/logout", nil)
	if err != nil {
		return errors.Wrap(ErrBackendUnavailable, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errors.Wrapf(ErrBackendUnavailable, "logout status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) postSession(ctx context.Context, path string, payload any, rejectionKind error) (*Session, error) {
	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, errors.Wrap(ErrBackendUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if err := classify(resp.StatusCode, rejectionKind); err != nil {
		c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("session call rejected")
		return nil, err
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, errors.Wrap(ErrBackendUnavailable, "malformed session response")
	}
	if session.AccessToken == "" {
		return nil, errors.Wrap(ErrBackendUnavailable, "session response missing access token")
	}
	return &session, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "json.Marshal")
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "http.NewRequestWithContext")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// classify maps a status code onto the closed error taxonomy. rejectionKind
// is the 4xx kind for the operation at hand.
func classify(status int, rejectionKind error) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status >= 400 && status <= 499:
		return errors.Wrapf(rejectionKind, "status %d", status)
	default:
		return errors.Wrapf(ErrBackendUnavailable, "status %d", status)
	}
}
