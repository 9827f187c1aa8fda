package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/classdesk/go-session-client/backend"
	"github.com/classdesk/go-session-client/backend/backendfakes"
	"github.com/classdesk/go-session-client/identity/identityfakes"
	"github.com/classdesk/go-session-client/session"
	"github.com/classdesk/go-session-client/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "Sup3rSecret"
)

// testFixture holds all manager dependencies.
type testFixture struct {
	gateway *identityfakes.FakeGateway
	backend *backendfakes.FakeClient
	kv      *storage.Memory
	manager *session.Manager
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		gateway: identityfakes.NewFakeGateway(),
		backend: backendfakes.NewFakeClient(),
		kv:      storage.NewMemory(),
	}

	manager, err := session.NewManager(session.Deps{
		Gateway: f.gateway,
		Backend: f.backend,
		Storage: f.kv,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	f.manager = manager
	t.Cleanup(manager.Close)
	return f
}

func (f *testFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.Start(context.Background()))
}

// eventuallyRecord polls the store until cond holds.
func (f *testFixture) eventuallyRecord(t *testing.T, cond func(session.Record) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(f.manager.Store().Snapshot())
	}, 2*time.Second, 5*time.Millisecond)
}

func aliceBackendSession() *backend.Session {
	return &backend.Session{
		AccessToken: "access-token-1",
		User: backend.User{
			ID:    "user-1",
			Name:  "Alice",
			Email: testEmail,
			Role:  "student",
		},
	}
}

func TestNewManagerRequiresDeps(t *testing.T) {
	_, err := session.NewManager(session.Deps{})
	require.Error(t, err)

	_, err = session.NewManager(session.Deps{
		Gateway: identityfakes.NewFakeGateway(),
		Backend: backendfakes.NewFakeClient(),
	})
	require.Error(t, err)
}

func TestStartTwiceFails(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)
	require.ErrorIs(t, f.manager.Start(context.Background()), session.ErrAlreadyStarted)
}

func TestBootstrapSignedOut(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)

	f.eventuallyRecord(t, func(rec session.Record) bool { return !rec.Loading })
	f.manager.Close()

	rec := f.manager.Store().Snapshot()
	require.Nil(t, rec.IdentityUser)
	require.Empty(t, rec.AccessToken)
	require.Equal(t, session.RoleNone, rec.Role)

	// The silent refresh probe ran exactly once, failed, and was swallowed.
	require.Equal(t, 1, f.backend.RefreshCallCount())
	require.Equal(t, 0, f.backend.LoginCallCount())
	require.Equal(t, 0, f.backend.RegisterCallCount())
}

func TestBootstrapWithIdentityAndRefreshCookie(t *testing.T) {
	f := setupTestFixture(t)
	f.gateway.SetCurrent(identityAlice())
	f.backend.RefreshSession = aliceBackendSession()
	f.start(t)

	f.eventuallyRecord(t, func(rec session.Record) bool { return rec.AccessToken != "" })

	rec := f.manager.Store().Snapshot()
	require.Equal(t, "uid-alice", rec.IdentityUser.UID)
	require.Equal(t, "access-token-1", rec.AccessToken)
	require.Equal(t, session.RoleStudent, rec.Role)
	require.False(t, rec.Loading)
}

func TestBootstrapRefreshFailureKeepsIdentity(t *testing.T) {
	f := setupTestFixture(t)
	f.gateway.SetCurrent(identityAlice())
	// No RefreshSession scripted: refresh fails like a first visit.
	f.start(t)

	f.eventuallyRecord(t, func(rec session.Record) bool {
		return !rec.Loading && rec.IdentityUser != nil
	})
	f.manager.Close()

	// Degraded, not evicted: identity known, backend session unknown.
	rec := f.manager.Store().Snapshot()
	require.Equal(t, "uid-alice", rec.IdentityUser.UID)
	require.Empty(t, rec.AccessToken)
	require.Equal(t, session.RoleNone, rec.Role)
}

func TestRedeliveryOfSameIdentityIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	f.gateway.SetCurrent(identityAlice())
	f.backend.RefreshSession = aliceBackendSession()
	f.start(t)

	f.eventuallyRecord(t, func(rec session.Record) bool { return rec.AccessToken != "" })

	notified := 0
	defer f.manager.Store().Subscribe(func(session.Record) { notified++ })()

	f.gateway.Emit(identityAlice())
	f.gateway.WaitForListeners()
	f.manager.Close()

	require.Equal(t, 0, notified)
	require.Equal(t, 1, f.backend.RefreshCallCount())
	require.Equal(t, "access-token-1", f.manager.Store().Snapshot().AccessToken)
}

func TestStaleRefreshDiscardedAfterSignOut(t *testing.T) {
	f := setupTestFixture(t)
	f.gateway.SetCurrent(identityAlice())
	f.backend.RefreshSession = aliceBackendSession()
	f.backend.RefreshBarrier = make(chan struct{})
	f.start(t)

	// Optimistic partial state is out while the refresh hangs.
	f.eventuallyRecord(t, func(rec session.Record) bool {
		return !rec.Loading && rec.IdentityUser != nil
	})

	// Identity vanishes before the refresh resolves.
	require.NoError(t, f.gateway.SignOut(context.Background()))
	f.eventuallyRecord(t, func(rec session.Record) bool { return rec.IdentityUser == nil })

	close(f.backend.RefreshBarrier)
	f.manager.Close()

	// The stale result must not have been applied.
	rec := f.manager.Store().Snapshot()
	require.Nil(t, rec.IdentityUser)
	require.Empty(t, rec.AccessToken)
	require.Equal(t, session.RoleNone, rec.Role)
}

func TestSignInWithPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.gateway.PasswordSession = identityAlice()
	f.backend.AddAccount(testEmail, testPassword, aliceBackendSession())
	f.start(t)

	require.NoError(t, f.manager.SignInWithPassword(context.Background(), testEmail, testPassword))

	rec := f.manager.Store().Snapshot()
	require.Equal(t, "uid-alice", rec.IdentityUser.UID)
	require.Equal(t, "access-token-1", rec.AccessToken)
	require.Equal(t, session.RoleStudent, rec.Role)

	notice, err := f.manager.Notices().TakeOnce()
	require.NoError(t, err)
	require.NotNil(t, notice)
	require.Equal(t, "Alice", notice.Name)
	require.False(t, notice.IsRegistration)
}

func TestSignInWithPasswordBackendFailureSurfaces(t *testing.T) {
	f := setupTestFixture(t)
	f.gateway.PasswordSession = identityAlice()
	f.backend.LoginErr = backend.ErrBackendUnavailable
	f.start(t)

	err := f.manager.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.ErrorIs(t, err, backend.ErrBackendUnavailable)
}

func TestSignUpWithPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.gateway.PasswordSession = identityAlice()
	f.start(t)

	require.NoError(t, f.manager.SignUpWithPassword(context.Background(), "Alice", testEmail, testPassword))

	require.Equal(t, 1, f.gateway.SignUpCallCount())
	require.Equal(t, 1, f.gateway.UpdateProfileCallCount())
	require.Equal(t, 1, f.backend.RegisterCallCount())
	require.Equal(t, "Alice", f.backend.LastRegister().Name)

	rec := f.manager.Store().Snapshot()
	require.NotEmpty(t, rec.AccessToken)
	require.Equal(t, session.RoleStudent, rec.Role)

	notice, err := f.manager.Notices().TakeOnce()
	require.NoError(t, err)
	require.NotNil(t, notice)
	require.True(t, notice.IsRegistration)
}

func TestSignUpWithWeakPasswordRejectedEarly(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)

	err := f.manager.SignUpWithPassword(context.Background(), "Alice", testEmail, "weak")
	require.ErrorIs(t, err, session.ErrPasswordPolicy)
	require.Equal(t, 0, f.gateway.SignUpCallCount())
	require.Equal(t, 0, f.backend.RegisterCallCount())
}

func TestLogoutClearsImmediatelyAndNeverRollsBack(t *testing.T) {
	f := setupTestFixture(t)
	f.gateway.PasswordSession = identityAlice()
	f.backend.AddAccount(testEmail, testPassword, aliceBackendSession())
	f.start(t)
	require.NoError(t, f.manager.SignInWithPassword(context.Background(), testEmail, testPassword))

	// Both side effects fail; the cleared store must stand regardless.
	f.backend.LogoutErr = backend.ErrBackendUnavailable
	f.manager.Logout()

	rec := f.manager.Store().Snapshot()
	require.Nil(t, rec.IdentityUser)
	require.Empty(t, rec.AccessToken)
	require.Equal(t, session.RoleNone, rec.Role)

	f.manager.Close()
	require.Equal(t, 1, f.backend.LogoutCallCount())
	require.Equal(t, 1, f.gateway.SignOutCallCount())
}

func TestReconcileReRunsRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.gateway.SetCurrent(identityAlice())
	f.start(t)

	f.eventuallyRecord(t, func(rec session.Record) bool {
		return !rec.Loading && rec.IdentityUser != nil
	})

	// Connectivity comes back: the caller retries the silent refresh.
	f.backend.RefreshSession = aliceBackendSession()
	f.manager.Reconcile()

	f.eventuallyRecord(t, func(rec session.Record) bool { return rec.AccessToken != "" })
	require.Equal(t, session.RoleStudent, f.manager.Store().Snapshot().Role)
}

func TestReconcileSignedOutIsNoop(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)
	f.eventuallyRecord(t, func(rec session.Record) bool { return !rec.Loading })
	f.manager.Close()

	before := f.backend.RefreshCallCount()
	f.manager.Reconcile()
	require.Equal(t, before, f.backend.RefreshCallCount())
}
