package storage

import (
	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
)

var _ KV = (*Keyring)(nil)

// Keyring stores values in the OS keychain (macOS Keychain, Windows
// Credential Manager, libsecret). Each key becomes an account under a single
// service name so uninstalling the app leaves one discoverable group.
type Keyring struct {
	service string
}

func NewKeyring(service string) *Keyring {
	return &Keyring{service: service}
}

func (k *Keyring) Get(key string) (string, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "[Keyring.Get] keyring.Get")
	}
	return v, nil
}

func (k *Keyring) Set(key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return errors.Wrap(err, "[Keyring.Set] keyring.Set")
	}
	return nil
}

func (k *Keyring) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrap(err, "[Keyring.Delete] keyring.Delete")
	}
	return nil
}
