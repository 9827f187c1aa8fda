// Package identity defines the boundary to the external identity provider.
// The rest of the client only ever sees this interface plus the small Session
// value; everything provider-specific lives behind it.
package identity

import (
	"context"
	"errors"
)

// Provider identifies a federated upstream offered on the sign-in screen.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Session is the provider's notion of who is signed in. It is created and
// destroyed entirely by the provider; the client observes it, never stores it
// as its own source of truth.
type Session struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Listener receives the current identity session, or nil when signed out.
type Listener func(session *Session)

var (
	// ErrUserCancelled means the user closed or abandoned the federated
	// sign-in window. It is an outcome, not a fault.
	ErrUserCancelled = errors.New("identity: user cancelled sign-in")

	// ErrProviderError wraps failures reported by the identity provider
	// itself during an interactive flow.
	ErrProviderError = errors.New("identity: provider error")
)

// Gateway is the capability set the client needs from the identity provider.
type Gateway interface {
	// SignInWithPassword authenticates an existing identity account.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignUpWithPassword creates a new identity account and signs it in.
	SignUpWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignInWithFederated runs the interactive flow for the given provider.
	// It may return ErrUserCancelled or ErrProviderError.
	SignInWithFederated(ctx context.Context, provider Provider) (*Session, error)

	// UpdateProfile sets the display name and photo on the current session.
	UpdateProfile(ctx context.Context, name, photoURL string) error

	// SignOut destroys the provider-side session.
	SignOut(ctx context.Context) error

	// OnSessionChange registers a listener. The listener fires at least once
	// after registration with the current session (possibly nil) and again on
	// every subsequent sign-in or sign-out. Delivery is asynchronous:
	// consumers must not assume it happens before other startup work.
	OnSessionChange(listener Listener) (unsubscribe func())
}
