// Package store defines the ports the application talks to its document
// store through. Implementations live in internal/storage (SQLite) and
// internal/store/memory.
package store

import (
	"context"
	"errors"
	"time"

	"masraf/internal/core"
	"masraf/internal/query"
)

var (
	// ErrNotFound is returned by lookups for absent documents.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key already exists.
	ErrConflict = errors.New("already exists")
)

type (
	// User is an authenticated account.
	User struct {
		ID         string
		Email      string
		SecretHash string
		CreatedAt  time.Time
	}

	// Profile is the secondary document keyed by identity, holding the
	// display name picked at registration.
	Profile struct {
		Name  string
		Email string
	}

	// Session is one server-side login session.
	Session struct {
		Token     string
		UserID    string
		Durable   bool
		ExpiresAt time.Time
	}
)

// Ports for outbound adapters.
type (
	RecordStore interface {
		// AddRecord stores a new record and returns its assigned identifier.
		// CreatedAt is assigned by the store at write time.
		AddRecord(ctx context.Context, r core.Record) (string, error)
		// UpdateRecord applies a partial update of the mutable fields only.
		UpdateRecord(ctx context.Context, id string, upd core.RecordUpdate) error
		DeleteRecord(ctx context.Context, id string) error
		GetRecord(ctx context.Context, id string) (core.Record, error)
		// ListRecords returns every record matching the predicate set, in
		// no guaranteed order.
		ListRecords(ctx context.Context, p query.PredicateSet) ([]core.Record, error)
	}

	UserStore interface {
		CreateUser(ctx context.Context, email, secretHash string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUser(ctx context.Context, id string) (User, error)
	}

	ProfileStore interface {
		PutProfile(ctx context.Context, identity string, p Profile) error
		GetProfile(ctx context.Context, identity string) (Profile, error)
	}

	SessionStore interface {
		CreateSession(ctx context.Context, s Session) error
		GetSession(ctx context.Context, token string) (Session, error)
		DeleteSession(ctx context.Context, token string) error
		// PurgeExpiredSessions removes every session whose expiry is at or
		// before the cutoff and returns the number removed.
		PurgeExpiredSessions(ctx context.Context, cutoff time.Time) (int, error)
	}

	// Store is the full surface a backend provides.
	Store interface {
		RecordStore
		UserStore
		ProfileStore
		SessionStore
	}
)
