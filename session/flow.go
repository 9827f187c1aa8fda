package session

import (
	"context"

	"github.com/classdesk/go-session-client/backend"
	"github.com/classdesk/go-session-client/identity"
	"github.com/pkg/errors"
)

// BeginFederated starts the interactive federated sign-in and the
// password-binding flow that gates it. The durable guard is written before
// the provider flow opens, because that flow can force a full restart and the
// guard must survive it. Only one flow may exist at a time.
//
// On success the returned state is AwaitingPassword: the identity session
// exists, but the Store keeps reporting an unauthenticated state until
// SubmitPendingPassword resolves the binding.
func (m *Manager) BeginFederated(ctx context.Context, provider identity.Provider) (*PendingCredential, error) {
	m.lock.Lock()
	if m.pending.active() || m.guardSet() {
		m.lock.Unlock()
		return nil, ErrPendingFlowActive
	}
	if err := m.setGuard(); err != nil {
		m.lock.Unlock()
		return nil, errors.Wrap(err, "[Manager.BeginFederated] setGuard")
	}
	m.pending = &PendingCredential{Provider: provider, Stage: StageAwaitingProviderResult}
	m.lock.Unlock()

	is, err := m.gateway.SignInWithFederated(ctx, provider)
	if err != nil {
		m.lock.Lock()
		m.clearGuard()
		m.pending = nil
		m.lock.Unlock()
		// ErrUserCancelled passes through untouched: it is an outcome the
		// caller treats as a no-op, not a fault.
		return nil, err
	}

	m.lock.Lock()
	p := pendingFromIdentity(is)
	p.Provider = provider
	m.pending = p
	state := *p
	m.lock.Unlock()

	m.log.Debug().Str("email", state.Email).Str("provider", string(provider)).Msg("awaiting password binding")
	return &state, nil
}

// SubmitPendingPassword resolves the binding with the password the user
// chose. Login is probed first so one entry point serves both a returning
// federated user and a first-time one; a credential rejection falls through
// to registration and is never surfaced. On any surfaced error the flow
// stays in AwaitingPassword with the guard intact so a retry keeps its
// federated identity context.
func (m *Manager) SubmitPendingPassword(ctx context.Context, password string) error {
	m.lock.Lock()
	p := m.pending
	if !p.active() || p.Stage != StageAwaitingPassword {
		m.lock.Unlock()
		return ErrNoPendingFlow
	}
	if err := validatePassword(password); err != nil {
		m.lock.Unlock()
		return err
	}
	p.Stage = StageAttemptingLogin
	email, name, photo, provider := p.Email, p.DisplayName, p.PhotoURL, p.Provider
	m.lock.Unlock()

	isRegistration := false
	bs, err := m.backend.Login(ctx, email, password)
	if err != nil {
		if !errors.Is(err, backend.ErrCredentialRejected) {
			m.setStage(p, StageAwaitingPassword)
			return errors.Wrap(err, "[Manager.SubmitPendingPassword] backend.Login")
		}

		// No backend account answers to these credentials yet: first-time
		// federated sign-in, so register with the bound password.
		m.setStage(p, StageAttemptingRegistration)
		bs, err = m.backend.Register(ctx, backend.RegisterParams{
			Name:            name,
			Email:           email,
			Password:        password,
			ProfileImageURL: photo,
			Provider:        string(provider),
		})
		if err != nil {
			m.setStage(p, StageAwaitingPassword)
			return errors.Wrap(err, "[Manager.SubmitPendingPassword] backend.Register")
		}
		isRegistration = true
	}

	m.lock.Lock()
	if m.pending != p {
		// The flow was cancelled while the backend call was in flight; the
		// teardown has already run and must not be rolled back.
		m.lock.Unlock()
		return ErrNoPendingFlow
	}
	p.Stage = StageResolved
	is := p.identitySession()
	m.clearGuard()
	m.pending = nil
	m.lock.Unlock()

	m.publishBackendSession(is, bs)
	m.putNotice(bs.User.Name, string(provider), isRegistration)
	m.log.Debug().Str("email", email).Bool("registered", isRegistration).Msg("password binding resolved")
	return nil
}

// CancelPending abandons the binding. The user explicitly walked away from
// choosing a password, so both the identity and any backend state are torn
// down; no partial or ambiguous session survives.
func (m *Manager) CancelPending() error {
	m.lock.Lock()
	if !m.pending.active() {
		m.lock.Unlock()
		return ErrNoPendingFlow
	}
	m.pending.Stage = StageCancelled
	m.lock.Unlock()

	m.Logout()
	return nil
}

// PendingState returns a copy of the in-flight flow state, or nil when Idle.
func (m *Manager) PendingState() *PendingCredential {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.pending == nil {
		return nil
	}
	state := *m.pending
	return &state
}

// setStage stamps the stage only while p is still the in-flight flow. A
// cancelled flow may be unwinding a backend call while its successor is
// already in progress; that unwind must not touch the successor's stage.
func (m *Manager) setStage(p *PendingCredential, stage Stage) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.pending == p && m.pending != nil {
		m.pending.Stage = stage
	}
}
