// Package storage provides the durable key-value store used for client state
// that must survive a full process restart: the pending-credential guard, the
// persisted identity token bundle and the one-shot post-auth notice.
package storage

import "errors"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// KV is a small durable key-value store. Implementations must be safe for
// concurrent use; values are opaque strings (callers handle serialization).
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
