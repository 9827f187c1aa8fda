package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/classdesk/go-session-client/identity"
)

// Store holds the canonical Record. It has one writer (the Manager) and many
// readers (route guards, the API layer, the UI). Updates are last-write-wins
// on the whole record; asynchronous reconciliation results are tagged with
// the identity generation they were computed against and dropped when stale.
type Store struct {
	lock        sync.RWMutex
	rec         Record
	gen         uint64
	subscribers map[string]func(Record)
}

func NewStore() *Store {
	return &Store{
		// Loading stays true until the first publication resolves the
		// bootstrap window.
		rec:         Record{Loading: true},
		subscribers: make(map[string]func(Record)),
	}
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Record {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return copyRecord(s.rec)
}

// Generation returns the current identity generation. A reconciliation
// attempt captures it at issue time and passes it to PublishIfCurrent.
func (s *Store) Generation() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.gen
}

// Current returns the record together with the generation it belongs to,
// under one lock. Callers tagging follow-up work against the identity they
// just read must use this instead of Snapshot plus Generation, which can
// straddle an identity change.
func (s *Store) Current() (Record, uint64) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return copyRecord(s.rec), s.gen
}

// Publish replaces the record. The generation advances whenever the identity
// changes, invalidating reconciliations computed against the old identity.
// Publishing a record equal to the current one notifies nobody. Returns the
// generation current after the publish.
func (s *Store) Publish(rec Record) uint64 {
	s.lock.Lock()
	rec = rec.normalize()
	if rec.equal(s.rec) {
		gen := s.gen
		s.lock.Unlock()
		return gen
	}
	if identityUID(rec.IdentityUser) != identityUID(s.rec.IdentityUser) {
		s.gen++
	}
	s.rec = copyRecord(rec)
	gen := s.gen
	subscribers := s.copySubscribers()
	s.lock.Unlock()

	for _, fn := range subscribers {
		fn(copyRecord(rec))
	}
	return gen
}

// BeginReconciliation publishes the optimistic partial record for u so the
// UI can render the signed-in shell, and returns the generation to tag the
// silent refresh with. When the store already holds a backend session for the
// same identity the record is left untouched and proceed is false: the event
// is a re-delivery, not a new sign-in. The check and the publish share one
// critical section so a racing full publish cannot be downgraded.
func (s *Store) BeginReconciliation(u *identity.Session) (gen uint64, proceed bool) {
	s.lock.Lock()
	if identityUID(s.rec.IdentityUser) == identityUID(u) && s.rec.AccessToken != "" && !s.rec.Loading {
		gen = s.gen
		s.lock.Unlock()
		return gen, false
	}

	rec := Record{IdentityUser: copyIdentity(u), Loading: false}
	if rec.equal(s.rec) {
		gen = s.gen
		s.lock.Unlock()
		return gen, true
	}
	if identityUID(rec.IdentityUser) != identityUID(s.rec.IdentityUser) {
		s.gen++
	}
	s.rec = rec
	gen = s.gen
	subscribers := s.copySubscribers()
	s.lock.Unlock()

	for _, fn := range subscribers {
		fn(copyRecord(rec))
	}
	return gen, true
}

// PublishIfCurrent applies rec only if gen still matches the identity
// generation, discarding results of reconciliations that raced with an
// identity change. Reports whether the record was applied.
func (s *Store) PublishIfCurrent(gen uint64, rec Record) bool {
	s.lock.Lock()
	if gen != s.gen {
		s.lock.Unlock()
		return false
	}
	rec = rec.normalize()
	if rec.equal(s.rec) {
		s.lock.Unlock()
		return true
	}
	// Same generation means the same identity; no bump.
	s.rec = copyRecord(rec)
	subscribers := s.copySubscribers()
	s.lock.Unlock()

	for _, fn := range subscribers {
		fn(copyRecord(rec))
	}
	return true
}

// Subscribe registers a read-only observer, invoked after every applied
// publish. The returned function removes it.
func (s *Store) Subscribe(fn func(Record)) func() {
	s.lock.Lock()
	id := uuid.New().String()
	s.subscribers[id] = fn
	s.lock.Unlock()

	return func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store) copySubscribers() []func(Record) {
	subscribers := make([]func(Record), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	return subscribers
}

func copyRecord(r Record) Record {
	if r.IdentityUser != nil {
		u := *r.IdentityUser
		r.IdentityUser = &u
	}
	return r
}

func copyIdentity(s *identity.Session) *identity.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
