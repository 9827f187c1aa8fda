package session

import "github.com/classdesk/go-session-client/identity"

// GuardKey is the durable flag marking an unresolved password-binding step.
// It is written before the federated flow opens, because the provider flow
// can force a full restart, and it must still be set afterwards. The key is
// shared with the deployed web client's local storage, hence the name.
const GuardKey = "google_pending_password"

// Stage is the pending-credential flow state.
type Stage string

const (
	StageIdle                   Stage = "Idle"
	StageAwaitingProviderResult Stage = "AwaitingProviderResult"
	StageAwaitingPassword       Stage = "AwaitingPassword"
	StageAttemptingLogin        Stage = "AttemptingLogin"
	StageAttemptingRegistration Stage = "AttemptingRegistration"
	StageResolved               Stage = "Resolved"
	StageCancelled              Stage = "Cancelled"
)

// PendingCredential is the state of the one in-flight password-binding flow:
// the federated identity it is binding, and how far it has got.
type PendingCredential struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	Provider    identity.Provider
	Stage       Stage
}

// pendingFromIdentity rebuilds the flow state after a restart, when the
// durable guard is set and the provider still reports the identity session.
func pendingFromIdentity(s *identity.Session) *PendingCredential {
	return &PendingCredential{
		UID:         s.UID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		PhotoURL:    s.PhotoURL,
		Stage:       StageAwaitingPassword,
	}
}

func (p *PendingCredential) identitySession() *identity.Session {
	return &identity.Session{
		UID:         p.UID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
	}
}

// active reports whether the flow is still in progress (guard territory).
func (p *PendingCredential) active() bool {
	if p == nil {
		return false
	}
	switch p.Stage {
	case StageAwaitingProviderResult, StageAwaitingPassword, StageAttemptingLogin, StageAttemptingRegistration:
		return true
	default:
		return false
	}
}
