// Package oidcgateway implements identity.Gateway against an OIDC identity
// provider that brokers Google and GitHub upstream. Interactive federated
// sign-in uses an authorization-code + PKCE flow with a loopback redirect;
// email/password sign-in uses the resource-owner password grant the provider
// exposes to first-party clients.
package oidcgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/classdesk/go-session-client/identity"
	"github.com/classdesk/go-session-client/storage"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	tokenBundleKey  = "identity_tokens"
	callbackPath    = "/callback"
	defaultWindow   = 5 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// Config carries the provider endpoints and client registration.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// CallbackPort is the loopback port for federated redirects; 0 picks an
	// ephemeral port.
	CallbackPort int

	// FederatedWindow bounds how long an interactive flow may stay open
	// before it is treated as cancelled. Zero means defaultWindow.
	FederatedWindow time.Duration
}

// tokenBundle is the persisted identity session. Keeping it in durable
// storage is what lets an identity session outlive a restart.
type tokenBundle struct {
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Provider     string    `json:"provider,omitempty"`
}

var _ identity.Gateway = (*Gateway)(nil)

// Gateway is the production identity.Gateway.
type Gateway struct {
	cfg      Config
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	kv       storage.KV
	log      zerolog.Logger

	lock      sync.Mutex
	current   *identity.Session
	bundle    *tokenBundle
	listeners map[string]identity.Listener
	wg        sync.WaitGroup
}

// New discovers the issuer and returns an unstarted Gateway.
func New(ctx context.Context, cfg Config, kv storage.KV, log zerolog.Logger) (*Gateway, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("[oidcgateway.New] IssuerURL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[oidcgateway.New] ClientID is required")
	}
	if kv == nil {
		return nil, errors.New("[oidcgateway.New] storage is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcgateway.New] oidc.NewProvider")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if cfg.FederatedWindow == 0 {
		cfg.FederatedWindow = defaultWindow
	}

	return &Gateway{
		cfg:       cfg,
		provider:  provider,
		verifier:  provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		kv:        kv,
		log:       log.With().Str("component", "oidcgateway").Logger(),
		listeners: make(map[string]identity.Listener),
	}, nil
}

// Start restores a persisted identity session, if any. Call it before
// registering listeners so the first delivery reflects the restored state.
func (g *Gateway) Start(ctx context.Context) error {
	raw, err := g.kv.Get(tokenBundleKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Gateway.Start] kv.Get")
	}

	var bundle tokenBundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		// An unreadable bundle is junk, not a fatal condition.
		g.log.Warn().Err(err).Msg("discarding unreadable identity token bundle")
		return g.kv.Delete(tokenBundleKey)
	}
	if !bundle.Expiry.IsZero() && bundle.Expiry.Before(time.Now()) {
		g.log.Debug().Msg("persisted identity session expired")
		return g.kv.Delete(tokenBundleKey)
	}

	session, err := g.sessionFromIDToken(ctx, bundle.IDToken, "")
	if err != nil {
		g.log.Warn().Err(err).Msg("persisted identity token failed verification")
		return g.kv.Delete(tokenBundleKey)
	}

	g.lock.Lock()
	g.current = session
	g.bundle = &bundle
	g.lock.Unlock()
	g.log.Debug().Str("uid", session.UID).Msg("identity session restored")
	return nil
}

func (g *Gateway) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	token, err := g.oauthConfig("").PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.SignInWithPassword] password grant")
	}
	session, err := g.adoptToken(ctx, token, "", "")
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.SignInWithPassword] adoptToken")
	}
	return session, nil
}

func (g *Gateway) SignUpWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.SignUpWithPassword] json.Marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.IssuerURL+"/signup", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.SignUpWithPassword] http.NewRequestWithContext")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.SignUpWithPassword] signup request")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(identity.ErrProviderError, "[Gateway.SignUpWithPassword] signup status %d", resp.StatusCode)
	}

	// The account now exists; sign it in through the normal grant.
	return g.SignInWithPassword(ctx, email, password)
}

func (g *Gateway) SignInWithFederated(ctx context.Context, provider identity.Provider) (*identity.Session, error) {
	result, err := g.runFederatedFlow(ctx, provider)
	if err != nil {
		return nil, err
	}
	session, err := g.adoptToken(ctx, result.token, result.nonce, string(provider))
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.SignInWithFederated] adoptToken")
	}
	return session, nil
}

func (g *Gateway) UpdateProfile(ctx context.Context, name, photoURL string) error {
	g.lock.Lock()
	bundle := g.bundle
	g.lock.Unlock()
	if bundle == nil {
		return errors.New("[Gateway.UpdateProfile] no identity session")
	}

	body, err := json.Marshal(map[string]string{"name": name, "picture": photoURL})
	if err != nil {
		return errors.Wrap(err, "[Gateway.UpdateProfile] json.Marshal")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.IssuerURL+"/profile", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "[Gateway.UpdateProfile] http.NewRequestWithContext")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bundle.IDToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "[Gateway.UpdateProfile] profile request")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(identity.ErrProviderError, "[Gateway.UpdateProfile] status %d", resp.StatusCode)
	}

	g.lock.Lock()
	if g.current != nil {
		g.current.DisplayName = name
		g.current.PhotoURL = photoURL
	}
	g.lock.Unlock()
	return nil
}

func (g *Gateway) SignOut(_ context.Context) error {
	if err := g.kv.Delete(tokenBundleKey); err != nil {
		return errors.Wrap(err, "[Gateway.SignOut] kv.Delete")
	}

	g.lock.Lock()
	g.current = nil
	g.bundle = nil
	g.lock.Unlock()

	g.dispatch()
	return nil
}

func (g *Gateway) OnSessionChange(listener identity.Listener) func() {
	g.lock.Lock()
	id := uuid.New().String()
	g.listeners[id] = listener
	current := copySession(g.current)
	g.lock.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		listener(current)
	}()

	return func() {
		g.lock.Lock()
		defer g.lock.Unlock()
		delete(g.listeners, id)
	}
}

// adoptToken verifies the ID token in an oauth2 token response, persists the
// bundle and makes the session current.
func (g *Gateway) adoptToken(ctx context.Context, token *oauth2.Token, nonce, provider string) (*identity.Session, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.Wrap(identity.ErrProviderError, "token response missing id_token")
	}

	session, err := g.sessionFromIDToken(ctx, rawIDToken, nonce)
	if err != nil {
		return nil, err
	}

	bundle := &tokenBundle{
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Provider:     provider,
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, errors.Wrap(err, "json.Marshal bundle")
	}
	if err := g.kv.Set(tokenBundleKey, string(raw)); err != nil {
		return nil, errors.Wrap(err, "kv.Set bundle")
	}

	g.lock.Lock()
	g.current = session
	g.bundle = bundle
	g.lock.Unlock()

	g.dispatch()
	return copySession(session), nil
}

func (g *Gateway) sessionFromIDToken(ctx context.Context, rawIDToken, expectedNonce string) (*identity.Session, error) {
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "verifier.Verify")
	}
	if expectedNonce != "" && idToken.Nonce != expectedNonce {
		return nil, errors.Wrap(identity.ErrProviderError, "nonce mismatch")
	}

	var claims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "idToken.Claims")
	}

	return &identity.Session{
		UID:         idToken.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}

func (g *Gateway) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		Endpoint:     g.provider.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       g.cfg.Scopes,
	}
}

func (g *Gateway) dispatch() {
	g.lock.Lock()
	current := copySession(g.current)
	listeners := make([]identity.Listener, 0, len(g.listeners))
	for _, l := range g.listeners {
		listeners = append(listeners, l)
	}
	g.lock.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for _, l := range listeners {
			l(copySession(current))
		}
	}()
}

func copySession(s *identity.Session) *identity.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

