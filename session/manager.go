package session

import (
	"context"
	"sync"
	"time"

	"github.com/classdesk/go-session-client/backend"
	"github.com/classdesk/go-session-client/identity"
	"github.com/classdesk/go-session-client/mailbox"
	"github.com/classdesk/go-session-client/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const logoutTimeout = 10 * time.Second

// BackendClient is what the Manager needs from the backend session API.
type BackendClient interface {
	Login(ctx context.Context, email, password string) (*backend.Session, error)
	Register(ctx context.Context, params backend.RegisterParams) (*backend.Session, error)
	RefreshToken(ctx context.Context) (*backend.Session, error)
	Logout(ctx context.Context) error
}

// Deps holds the Manager's collaborators.
type Deps struct {
	Gateway identity.Gateway
	Backend BackendClient
	Storage storage.KV // durable guard + one-shot notice; must survive restart
	Logger  zerolog.Logger
}

// Manager owns the single identity-listener subscription, the durable
// pending guard and the Store. It is the Store's only writer.
type Manager struct {
	gateway identity.Gateway
	backend BackendClient
	kv      storage.KV
	store   *Store
	notices *mailbox.Mailbox
	log     zerolog.Logger

	lock         sync.Mutex
	pending      *PendingCredential
	started      bool
	bootstrapped bool
	unsubscribe  func()

	appCtx context.Context
	bg     sync.WaitGroup
}

// NewManager initializes a Manager with required dependencies.
func NewManager(deps Deps) (*Manager, error) {
	if deps.Gateway == nil {
		return nil, errors.New("[NewManager] Gateway is required")
	}
	if deps.Backend == nil {
		return nil, errors.New("[NewManager] Backend is required")
	}
	if deps.Storage == nil {
		return nil, errors.New("[NewManager] Storage is required")
	}

	return &Manager{
		gateway: deps.Gateway,
		backend: deps.Backend,
		kv:      deps.Storage,
		store:   NewStore(),
		notices: mailbox.New(deps.Storage),
		log:     deps.Logger.With().Str("component", "session").Logger(),
	}, nil
}

// Store exposes the observable session record for read-only consumers.
func (m *Manager) Store() *Store {
	return m.store
}

// Notices exposes the one-shot post-auth mailbox for the presentation layer.
func (m *Manager) Notices() *mailbox.Mailbox {
	return m.notices
}

// Start registers the single session-change listener and begins reconciling.
// It runs once per application load; the Store stays Loading until the first
// listener delivery resolves.
func (m *Manager) Start(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.appCtx = ctx

	m.unsubscribe = m.gateway.OnSessionChange(func(s *identity.Session) {
		m.handleSessionChange(s)
	})
	return nil
}

// Close unsubscribes from the gateway and waits for in-flight background
// reconciliation to finish.
func (m *Manager) Close() {
	m.lock.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.lock.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.bg.Wait()
}

// handleSessionChange interprets every identity-state event. Deliveries are
// asynchronous and unordered relative to in-flight refreshes; all decisions
// go through the Store's generation tagging.
func (m *Manager) handleSessionChange(s *identity.Session) {
	m.lock.Lock()
	guard := m.guardSet()
	pendingActive := m.pending.active()
	firstDelivery := !m.bootstrapped
	m.bootstrapped = true

	switch {
	case s != nil && guard:
		// Password binding is outstanding: the provider already reports a
		// user, but the application must not treat them as authenticated.
		if m.pending == nil {
			// Restart mid-flow: rebuild the AwaitingPassword state from the
			// identity session so the UI can reopen the binding prompt.
			m.pending = pendingFromIdentity(s)
			m.log.Debug().Str("email", s.Email).Msg("restored pending password binding after restart")
		}
		m.lock.Unlock()
		m.store.Publish(Record{Loading: false})
		return

	case s == nil:
		if guard && !pendingActive {
			// Guard with no identity session behind it is leftover from an
			// aborted flow; keeping it would suppress the next sign-in.
			m.clearGuard()
			m.pending = nil
		}
		m.lock.Unlock()
		gen := m.store.Publish(Record{Loading: false})
		if firstDelivery {
			// The silent refresh still runs once per load: the refresh
			// cookie is independent of the identity session, and a failed
			// probe on a first visit is expected, not an error. With no
			// identity present any success is discarded by normalization,
			// so the no-orphan invariant holds regardless of the outcome.
			m.reconcile(gen, nil)
		}
		return
	}
	m.lock.Unlock()

	// Optimistic partial state: the UI can render the signed-in shell while
	// the backend session is re-established in the background. Re-delivery
	// of an already reconciled identity publishes nothing.
	gen, proceed := m.store.BeginReconciliation(s)
	if proceed {
		m.reconcile(gen, s)
	}
}

// reconcile silently re-establishes the backend session for the identity s.
// Failures are expected (first visit has no refresh cookie) and never
// surfaced; the session degrades to "identity known, backend unknown".
func (m *Manager) reconcile(gen uint64, s *identity.Session) {
	s = copyIdentity(s)
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()

		bs, err := m.backend.RefreshToken(m.appCtx)
		if err != nil {
			m.log.Debug().Err(err).Msg("silent refresh failed; keeping identity without backend session")
			return
		}

		applied := m.store.PublishIfCurrent(gen, Record{
			IdentityUser: s,
			AccessToken:  bs.AccessToken,
			Role:         ParseRole(bs.User.Role),
			Loading:      false,
		})
		if !applied {
			m.log.Debug().Str("uid", identityUID(s)).Msg("discarding stale refresh result")
		}
	}()
}

// Reconcile re-runs the silent refresh for the current identity session, for
// callers reacting to connectivity changes. No-op when signed out.
func (m *Manager) Reconcile() {
	current, gen := m.store.Current()
	if current.IdentityUser == nil {
		return
	}
	m.reconcile(gen, current.IdentityUser)
}

// SignInWithPassword signs in to both systems with an email/password pair.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) error {
	is, err := m.gateway.SignInWithPassword(ctx, email, password)
	if err != nil {
		return errors.Wrap(err, "[Manager.SignInWithPassword] gateway.SignInWithPassword")
	}

	bs, err := m.backend.Login(ctx, email, password)
	if err != nil {
		// Identity is signed in; the listener will publish the partial state.
		return errors.Wrap(err, "[Manager.SignInWithPassword] backend.Login")
	}

	m.publishBackendSession(is, bs)
	m.putNotice(bs.User.Name, "", false)
	return nil
}

// SignUpWithPassword creates accounts on both systems and signs them in.
func (m *Manager) SignUpWithPassword(ctx context.Context, name, email, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}

	is, err := m.gateway.SignUpWithPassword(ctx, email, password)
	if err != nil {
		return errors.Wrap(err, "[Manager.SignUpWithPassword] gateway.SignUpWithPassword")
	}
	if err := m.gateway.UpdateProfile(ctx, name, ""); err != nil {
		return errors.Wrap(err, "[Manager.SignUpWithPassword] gateway.UpdateProfile")
	}
	is.DisplayName = name

	bs, err := m.backend.Register(ctx, backend.RegisterParams{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return errors.Wrap(err, "[Manager.SignUpWithPassword] backend.Register")
	}

	m.publishBackendSession(is, bs)
	m.putNotice(bs.User.Name, "", true)
	return nil
}

// Logout clears the Store synchronously, then invalidates both backends best
// effort. It never fails from the caller's perspective and the cleared state
// is never rolled back. Navigation is the caller's responsibility.
func (m *Manager) Logout() {
	m.lock.Lock()
	m.pending = nil
	m.clearGuard()
	m.lock.Unlock()

	m.store.Publish(Record{Loading: false})

	m.bg.Add(2)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		if err := m.backend.Logout(ctx); err != nil {
			m.log.Warn().Err(err).Msg("backend logout failed; refresh credential may outlive the session")
		}
	}()
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		if err := m.gateway.SignOut(ctx); err != nil {
			m.log.Warn().Err(err).Msg("identity sign-out failed")
		}
	}()
}

func (m *Manager) publishBackendSession(is *identity.Session, bs *backend.Session) {
	m.store.Publish(Record{
		IdentityUser: is,
		AccessToken:  bs.AccessToken,
		Role:         ParseRole(bs.User.Role),
		Loading:      false,
	})
}

func (m *Manager) putNotice(name, provider string, isRegistration bool) {
	err := m.notices.Put(mailbox.Notice{Name: name, Provider: provider, IsRegistration: isRegistration})
	if err != nil {
		m.log.Warn().Err(err).Msg("could not store post-auth notice")
	}
}

func (m *Manager) guardSet() bool {
	_, err := m.kv.Get(GuardKey)
	return err == nil
}

func (m *Manager) setGuard() error {
	if err := m.kv.Set(GuardKey, "1"); err != nil {
		return errors.Wrap(err, "[Manager.setGuard] kv.Set")
	}
	return nil
}

func (m *Manager) clearGuard() {
	if err := m.kv.Delete(GuardKey); err != nil {
		m.log.Warn().Err(err).Msg("could not clear pending guard")
	}
}
