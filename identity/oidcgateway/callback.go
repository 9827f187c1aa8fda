package oidcgateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/classdesk/go-session-client/identity"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// federatedResult carries the exchanged token plus the nonce the ID token
// must echo back.
type federatedResult struct {
	token *oauth2.Token
	nonce string
}

type callbackOutcome struct {
	code string
	err  error
}

// runFederatedFlow starts a loopback redirect listener, sends the user's
// browser to the provider's authorization endpoint and waits for the
// redirect. The flow has no caller-enforced timeout beyond the federated
// window; an expired window or cancelled context maps to ErrUserCancelled,
// since the only way to get there is the user walking away.
func (g *Gateway) runFederatedFlow(ctx context.Context, provider identity.Provider) (*federatedResult, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", g.cfg.CallbackPort))
	if err != nil {
		return nil, errors.Wrap(err, "[runFederatedFlow] net.Listen")
	}
	redirectURL := fmt.Sprintf("http://%s%s", listener.Addr().String(), callbackPath)

	state := uuid.New().String()
	nonce := uuid.New().String()
	verifier := oauth2.GenerateVerifier()

	outcomes := make(chan callbackOutcome, 1)
	var once sync.Once
	deliver := func(o callbackOutcome) { once.Do(func() { outcomes <- o }) }

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			deliver(callbackOutcome{err: errors.Wrap(identity.ErrProviderError, "state mismatch")})
		case q.Get("error") == "access_denied":
			fmt.Fprint(w, "Sign-in cancelled. You can close this window.")
			deliver(callbackOutcome{err: identity.ErrUserCancelled})
		case q.Get("error") != "":
			http.Error(w, "sign-in failed", http.StatusBadGateway)
			deliver(callbackOutcome{err: errors.Wrapf(identity.ErrProviderError, "provider returned %q", q.Get("error"))})
		default:
			fmt.Fprint(w, "Signed in. You can close this window and return to ClassDesk.")
			deliver(callbackOutcome{code: q.Get("code")})
		}
	})

	server := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			g.log.Warn().Err(err).Msg("callback server stopped unexpectedly")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	oauthCfg := g.oauthConfig(redirectURL)
	authURL := oauthCfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oidcNonceParam(nonce),
		oauth2.SetAuthURLParam("provider", string(provider)),
	)

	g.log.Debug().Str("provider", string(provider)).Str("url", authURL).Msg("opening federated sign-in")
	if err := openBrowser(authURL); err != nil {
		// Headless hosts can still follow the logged URL manually.
		g.log.Warn().Err(err).Msg("could not open browser; follow the sign-in URL manually")
	}

	select {
	case <-ctx.Done():
		return nil, identity.ErrUserCancelled
	case <-time.After(g.cfg.FederatedWindow):
		return nil, identity.ErrUserCancelled
	case outcome := <-outcomes:
		if outcome.err != nil {
			return nil, outcome.err
		}
		token, err := oauthCfg.Exchange(ctx, outcome.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, errors.Wrap(identity.ErrProviderError, err.Error())
		}
		return &federatedResult{token: token, nonce: nonce}, nil
	}
}

func oidcNonceParam(nonce string) oauth2.AuthCodeOption {
	return oauth2.SetAuthURLParam("nonce", nonce)
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
