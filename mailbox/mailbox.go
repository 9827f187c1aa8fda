// Package mailbox is a one-shot message channel between the auth core and the
// presentation layer. The notice is written when a sign-in resolves and read
// exactly once by whoever renders the welcome toast, including across a
// restart when the federated flow forced one.
package mailbox

import (
	"encoding/json"

	"github.com/classdesk/go-session-client/storage"
	"github.com/pkg/errors"
)

const noticeKey = "post_auth_notice"

// Notice is the payload shown to the user after a completed sign-in.
type Notice struct {
	Name           string `json:"name"`
	Provider       string `json:"provider,omitempty"`
	IsRegistration bool   `json:"isRegistration"`
}

// Mailbox stores at most one Notice in a durable KV.
type Mailbox struct {
	kv storage.KV
}

func New(kv storage.KV) *Mailbox {
	return &Mailbox{kv: kv}
}

// Put stores the notice, replacing any unconsumed one.
func (m *Mailbox) Put(n Notice) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "[Mailbox.Put] json.Marshal")
	}
	if err := m.kv.Set(noticeKey, string(raw)); err != nil {
		return errors.Wrap(err, "[Mailbox.Put] kv.Set")
	}
	return nil
}

// TakeOnce returns the stored notice and removes it, or (nil, nil) when there
// is none. The delete happens before the notice is returned so a crash after
// consumption cannot re-fire it.
func (m *Mailbox) TakeOnce() (*Notice, error) {
	raw, err := m.kv.Get(noticeKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Mailbox.TakeOnce] kv.Get")
	}

	if err := m.kv.Delete(noticeKey); err != nil {
		return nil, errors.Wrap(err, "[Mailbox.TakeOnce] kv.Delete")
	}

	var n Notice
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, errors.Wrap(err, "[Mailbox.TakeOnce] json.Unmarshal")
	}
	return &n, nil
}
