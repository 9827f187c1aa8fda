package identityfakes

import (
	"context"
	"sync"

	"github.com/classdesk/go-session-client/identity"
	"github.com/google/uuid"
)

var _ identity.Gateway = (*FakeGateway)(nil)

// FakeGateway is a scripted identity.Gateway for tests. Sign-ins succeed with
// the configured sessions unless an error is scripted; listeners are fired
// from a goroutine to honour the asynchronous delivery contract.
type FakeGateway struct {
	lock      sync.Mutex
	current   *identity.Session
	listeners map[string]identity.Listener
	wg        sync.WaitGroup

	// Scripted behaviour.
	PasswordSession  *identity.Session
	FederatedSession *identity.Session
	SignInErr        error
	SignUpErr        error
	FederatedErr     error
	UpdateProfileErr error
	SignOutErr       error

	// FederatedBarrier, when set, holds every SignInWithFederated call in
	// flight until the test sends on (or closes) it.
	FederatedBarrier chan struct{}

	signInCalls        int
	signUpCalls        int
	federatedCalls     int
	updateProfileCalls int
	signOutCalls       int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{listeners: make(map[string]identity.Listener)}
}

// SetCurrent seeds the session reported to newly registered listeners,
// without emitting (models state that predates application start).
func (g *FakeGateway) SetCurrent(s *identity.Session) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.current = s
}

// Emit replaces the current session and notifies listeners, modelling a
// provider-side change such as remote invalidation.
func (g *FakeGateway) Emit(s *identity.Session) {
	g.lock.Lock()
	g.current = s
	g.lock.Unlock()
	g.dispatch()
}

// WaitForListeners blocks until all in-flight listener dispatches complete.
func (g *FakeGateway) WaitForListeners() {
	g.wg.Wait()
}

func (g *FakeGateway) SignInWithPassword(_ context.Context, _, _ string) (*identity.Session, error) {
	g.lock.Lock()
	g.signInCalls++
	err := g.SignInErr
	s := g.PasswordSession
	if err == nil {
		g.current = s
	}
	g.lock.Unlock()

	if err != nil {
		return nil, err
	}
	g.dispatch()
	return s, nil
}

func (g *FakeGateway) SignUpWithPassword(_ context.Context, _, _ string) (*identity.Session, error) {
	g.lock.Lock()
	g.signUpCalls++
	err := g.SignUpErr
	s := g.PasswordSession
	if err == nil {
		g.current = s
	}
	g.lock.Unlock()

	if err != nil {
		return nil, err
	}
	g.dispatch()
	return s, nil
}

func (g *FakeGateway) SignInWithFederated(_ context.Context, _ identity.Provider) (*identity.Session, error) {
	g.lock.Lock()
	g.federatedCalls++
	err := g.FederatedErr
	s := g.FederatedSession
	barrier := g.FederatedBarrier
	g.lock.Unlock()

	if barrier != nil {
		<-barrier
	}

	if err != nil {
		return nil, err
	}

	g.lock.Lock()
	g.current = s
	g.lock.Unlock()
	g.dispatch()
	return s, nil
}

func (g *FakeGateway) UpdateProfile(_ context.Context, name, photoURL string) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.updateProfileCalls++
	if g.UpdateProfileErr != nil {
		return g.UpdateProfileErr
	}
	if g.current != nil {
		g.current.DisplayName = name
		g.current.PhotoURL = photoURL
	}
	return nil
}

func (g *FakeGateway) SignOut(_ context.Context) error {
	g.lock.Lock()
	g.signOutCalls++
	err := g.SignOutErr
	g.current = nil
	g.lock.Unlock()

	g.dispatch()
	return err
}

func (g *FakeGateway) OnSessionChange(listener identity.Listener) func() {
	g.lock.Lock()
	id := uuid.New().String()
	g.listeners[id] = listener
	current := g.current
	g.lock.Unlock()

	// Initial delivery is asynchronous, like the real SDK.
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		listener(copySession(current))
	}()

	return func() {
		g.lock.Lock()
		defer g.lock.Unlock()
		delete(g.listeners, id)
	}
}

func (g *FakeGateway) SignInCallCount() int        { g.lock.Lock(); defer g.lock.Unlock(); return g.signInCalls }
func (g *FakeGateway) SignUpCallCount() int        { g.lock.Lock(); defer g.lock.Unlock(); return g.signUpCalls }
func (g *FakeGateway) FederatedCallCount() int     { g.lock.Lock(); defer g.lock.Unlock(); return g.federatedCalls }
func (g *FakeGateway) UpdateProfileCallCount() int { g.lock.Lock(); defer g.lock.Unlock(); return g.updateProfileCalls }
func (g *FakeGateway) SignOutCallCount() int       { g.lock.Lock(); defer g.lock.Unlock(); return g.signOutCalls }

func (g *FakeGateway) dispatch() {
	g.lock.Lock()
	current := g.current
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
