package session

import "errors"

var (
	// ErrPendingFlowActive rejects a second federated sign-in while one is
	// already awaiting its provider result or password binding. Exactly one
	// pending-credential flow may exist.
	ErrPendingFlowActive = errors.New("a federated sign-in is already in progress")

	// ErrNoPendingFlow means a password was submitted or a cancel requested
	// with no flow awaiting it.
	ErrNoPendingFlow = errors.New("no pending federated sign-in")

	// ErrPasswordPolicy is the validation class for password-binding input;
	// the flow stays in AwaitingPassword when it is returned.
	ErrPasswordPolicy = errors.New("password does not meet policy")

	// ErrAlreadyStarted guards the single-subscription contract of Start.
	ErrAlreadyStarted = errors.New("session manager already started")
)
