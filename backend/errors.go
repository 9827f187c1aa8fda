package backend

import "errors"

// Error kinds for backend session calls. Classification happens once, in
// classify; call sites only ever test these with errors.Is.
var (
	// ErrBackendUnavailable covers transport failures and 5xx responses.
	// Background reconciliation swallows it; user-initiated calls surface it.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrCredentialRejected is a 4xx answer to a login or refresh attempt.
	// During the pending-credential probe this is the "no such account yet"
	// signal that triggers registration.
	ErrCredentialRejected = errors.New("credentials rejected")

	// ErrRegistrationRejected is a 4xx answer to a register attempt.
	ErrRegistrationRejected = errors.New("registration rejected")
)
