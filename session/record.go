// Package session is the reconciliation core: it keeps the external identity
// provider's session and the application's own backend token session
// consistent inside one observable record, and runs the password-binding flow
// required the first time a federated identity signs in.
package session

import "github.com/classdesk/go-session-client/identity"

// Role is the authorization level the backend assigns. The zero value means
// the backend handshake has not completed; consumers must treat it as "not
// yet authorized", never as a default role.
type Role string

const (
	RoleNone    Role = ""
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole maps a backend role string onto the closed Role set. Anything
// unrecognised degrades to RoleNone rather than smuggling in a new level.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return Role(s)
	default:
		return RoleNone
	}
}

// Record is the single application-visible session state.
//
// Invariants:
//   - IdentityUser == nil implies AccessToken == "" and Role == RoleNone;
//     a backend session never outlives the identity it was derived from.
//   - Loading is true only between application start and the first resolution
//     of the initial identity callback and, if applicable, the silent refresh.
type Record struct {
	IdentityUser *identity.Session
	AccessToken  string
	Role         Role
	Loading      bool
}

// Authenticated reports whether an identity session is present.
func (r Record) Authenticated() bool {
	return r.IdentityUser != nil
}

// normalize enforces the no-orphan-backend-session invariant.
func (r Record) normalize() Record {
	if r.IdentityUser == nil {
		r.AccessToken = ""
		r.Role = RoleNone
	}
	return r
}

func (r Record) equal(o Record) bool {
	if r.AccessToken != o.AccessToken || r.Role != o.Role || r.Loading != o.Loading {
		return false
	}
	switch {
	case r.IdentityUser == nil && o.IdentityUser == nil:
		return true
	case r.IdentityUser == nil || o.IdentityUser == nil:
		return false
	default:
		return *r.IdentityUser == *o.IdentityUser
	}
}

func identityUID(s *identity.Session) string {
	if s == nil {
		return ""
	}
	return s.UID
}
