// Package memory is an in-process store implementation used by tests and the
// dev backend. It honors the same contracts as the SQLite store, including
// store-assigned identifiers and monotonically non-decreasing CreatedAt.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"masraf/internal/core"
	"masraf/internal/query"
	"masraf/internal/store"
)

type Store struct {
	mu       sync.Mutex
	records  map[string]core.Record
	users    map[string]store.User // by id
	byEmail  map[string]string     // email -> user id
	profiles map[string]store.Profile
	sessions map[string]store.Session
	lastAt   time.Time

	// now is swappable in tests
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		records:  make(map[string]core.Record),
		users:    make(map[string]store.User),
		byEmail:  make(map[string]string),
		profiles: make(map[string]store.Profile),
		sessions: make(map[string]store.Session),
		now:      time.Now,
	}
}

// SetClock replaces the timestamp source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// assignedAt returns a write timestamp that never goes backwards.
func (s *Store) assignedAt() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastAt) {
		t = s.lastAt.Add(time.Microsecond)
	}
	s.lastAt = t
	return t
}

func (s *Store) AddRecord(_ context.Context, r core.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uuid.NewString()
	r.CreatedAt = s.assignedAt()
	s.records[r.ID] = r
	return r.ID, nil
}

func (s *Store) UpdateRecord(_ context.Context, id string, upd core.RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Name = strings.TrimSpace(upd.Name)
	r.Price = upd.Price
	r.Category = upd.Category
	s.records[id] = r
	return nil
}

func (s *Store) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *Store) GetRecord(_ context.Context, id string) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return core.Record{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListRecords(_ context.Context, p query.PredicateSet) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Record
	for _, r := range s.records {
		if p.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, email, secretHash string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return store.User{}, store.ErrConflict
	}
	u := store.User{
		ID:         uuid.NewString(),
		Email:      email,
		SecretHash: secretHash,
		CreatedAt:  s.assignedAt(),
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUser(_ context.Context, id string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) PutProfile(_ context.Context, identity string, p store.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[identity] = p
	return nil
}

func (s *Store) GetProfile(_ context.Context, identity string) (store.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identity]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreateSession(_ context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) PurgeExpiredSessions(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for token, sess := range s.sessions {
		if !sess.ExpiresAt.After(cutoff) {
			delete(s.sessions, token)
			purged++
		}
	}
	return purged, nil
}

// Close exists so the backend factory can treat every store uniformly.
func (s *Store) Close() error {
	return nil
}
