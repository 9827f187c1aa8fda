// Package routeguard turns a session record into routing decisions. Guards
// are pure read-only consumers of the Store; they never mutate session state.
package routeguard

import "github.com/classdesk/go-session-client/session"

// Action says what the router should do with the guarded route.
type Action string

const (
	// ActionAllow renders the route.
	ActionAllow Action = "allow"

	// ActionWait renders a loading placeholder. Guards wait out the
	// bootstrap window instead of redirecting, so a reload of a protected
	// route does not flash through the sign-in screen.
	ActionWait Action = "wait"

	// ActionRedirect sends the user to Target.
	ActionRedirect Action = "redirect"
)

const (
	SignInRoute = "/signin"

	// UnauthorizedRoute is a neutral landing, not an error page: lacking a
	// role is an authorization fact, not a fault.
	UnauthorizedRoute = "/unauthorized"
)

// Decision is a guard's verdict. ReturnTo preserves the attempted path so a
// completed sign-in can return to it.
type Decision struct {
	Action   Action
	Target   string
	ReturnTo string
}

// RequireAuthenticated admits any identity-authenticated user.
func RequireAuthenticated(rec session.Record, path string) Decision {
	if rec.Loading {
		return Decision{Action: ActionWait}
	}
	if !rec.Authenticated() {
		return Decision{Action: ActionRedirect, Target: SignInRoute, ReturnTo: path}
	}
	return Decision{Action: ActionAllow}
}

// RequireRole additionally demands a resolved backend role in the allowed
// set. A missing role (backend handshake not yet complete, or degraded)
// routes to the neutral unauthorized state.
func RequireRole(rec session.Record, path string, allowed ...session.Role) Decision {
	if d := RequireAuthenticated(rec, path); d.Action != ActionAllow {
		return d
	}
	if rec.Role == session.RoleNone {
		return Decision{Action: ActionRedirect, Target: UnauthorizedRoute}
	}
	for _, role := range allowed {
		if rec.Role == role {
			return Decision{Action: ActionAllow}
		}
	}
	return Decision{Action: ActionRedirect, Target: UnauthorizedRoute}
}
