package backendfakes

import (
	"context"
	"sync"

	"github.com/classdesk/go-session-client/backend"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type account struct {
	password string
	session  *backend.Session
}

// FakeClient is a scripted backend client for tests. Accounts behave like
// the real API: login matches email+password, register creates the account
// it was asked for, refresh replays whatever is scripted.
type FakeClient struct {
	lock     sync.Mutex
	accounts map[string]*account

	RefreshSession *backend.Session
	RefreshErr     error
	// RefreshBarrier, when set, holds every RefreshToken call in flight
	// until the test sends on (or closes) it. LoginBarrier does the same
	// for Login.
	RefreshBarrier chan struct{}
	LoginBarrier   chan struct{}
	LoginErr       error // overrides account lookup when set
	RegisterErr    error
	LogoutErr      error
	RegisterRole   string

	loginCalls    int
	registerCalls int
	refreshCalls  int
	logoutCalls   int
	lastRegister  backend.RegisterParams
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		accounts:     make(map[string]*account),
		RegisterRole: "student",
	}
}

// AddAccount seeds a backend account that Login will accept.
func (f *FakeClient) AddAccount(email, password string, session *backend.Session) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.accounts[email] = &account{password: password, session: session}
}

func (f *FakeClient) Login(_ context.Context, email, password string) (*backend.Session, error) {
	f.lock.Lock()
	f.loginCalls++
	barrier := f.LoginBarrier
	f.lock.Unlock()

	if barrier != nil {
		<-barrier
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	acct, ok := f.accounts[email]
	if !ok || acct.password != password {
		return nil, errors.Wrap(backend.ErrCredentialRejected, "status 401")
	}
	return copySession(acct.session), nil
}

func (f *FakeClient) Register(_ context.Context, params backend.RegisterParams) (*backend.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.registerCalls++
	f.lastRegister = params

	if f.RegisterErr != nil {
		return nil, f.RegisterErr
	}

	session := &backend.Session{
		AccessToken: "registered-" + uuid.New().String(),
		User: backend.User{
			ID:           uuid.New().String(),
			Name:         params.Name,
			Email:        params.Email,
			Role:         f.RegisterRole,
			ProfileImage: params.ProfileImageURL,
		},
	}
	f.accounts[params.Email] = &account{password: params.Password, session: session}
	return copySession(session), nil
}

func (f *FakeClient) RefreshToken(_ context.Context) (*backend.Session, error) {
	f.lock.Lock()
	f.refreshCalls++
	barrier := f.RefreshBarrier
	f.lock.Unlock()

	if barrier != nil {
		<-barrier
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	if f.RefreshSession == nil {
		return nil, errors.Wrap(backend.ErrCredentialRejected, "status 401")
	}
	return copySession(f.RefreshSession), nil
}

func (f *FakeClient) Logout(_ context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.logoutCalls++
	return f.LogoutErr
}

func (f *FakeClient) LoginCallCount() int    { f.lock.Lock(); defer f.lock.Unlock(); return f.loginCalls }
func (f *FakeClient) RegisterCallCount() int { f.lock.Lock(); defer f.lock.Unlock(); return f.registerCalls }
func (f *FakeClient) RefreshCallCount() int  { f.lock.Lock(); defer f.lock.Unlock(); return f.refreshCalls }
func (f *FakeClient) LogoutCallCount() int   { f.lock.Lock(); defer f.lock.Unlock(); return f.logoutCalls }

// LastRegister returns the parameters of the most recent Register call.
func (f *FakeClient) LastRegister() backend.RegisterParams {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.lastRegister
}

func copySession(s *backend.Session) *backend.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
