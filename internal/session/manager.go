// Package session tracks the authenticated identity: registration, sign-in,
// sign-out and the best-effort display-name lookup that goes with it.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"masraf/internal/cache"
	"masraf/internal/store"
)

// PersistenceFlagName is the fixed client-side cookie name remembering the
// persistence mode chosen at the last sign-in, across restarts.
const PersistenceFlagName = "remember_mode"

const (
	// SessionOnly sessions end when the browser session does.
	SessionOnly PersistenceMode = "session"
	// Durable sessions survive browser restarts.
	Durable PersistenceMode = "durable"
)

type PersistenceMode string

// ParsePersistenceMode maps a stored flag value back to a mode, defaulting
// to session-only for anything unrecognized.
func ParsePersistenceMode(s string) PersistenceMode {
	if PersistenceMode(s) == Durable {
		return Durable
	}
	return SessionOnly
}

// Error taxonomy surfaced to callers. Anything else that leaks out of the
// store is passed through as the catch-all.
var (
	ErrUnknownIdentity   = errors.New("unknown identity")
	ErrBadCredential     = errors.New("bad credential")
	ErrAlreadyRegistered = errors.New("identity already registered")
	ErrMalformedIdentity = errors.New("malformed identity string")
	ErrWeakSecret        = errors.New("secret too weak")
)

const minSecretLength = 6

type (
	// Identity is the resolved authenticated principal.
	Identity struct {
		ID    string
		Email string
	}

	// Manager is the session service. It owns nothing but the name cache;
	// all durable state lives in the store.
	Manager struct {
		users      store.UserStore
		profiles   store.ProfileStore
		sessions   store.SessionStore
		names      *cache.LRUCache[string]
		sessionTTL time.Duration
		durableTTL time.Duration
	}
)

func NewManager(users store.UserStore, profiles store.ProfileStore, sessions store.SessionStore, sessionTTL, durableTTL time.Duration) *Manager {
	return &Manager{
		users:      users,
		profiles:   profiles,
		sessions:   sessions,
		names:      cache.NewLRUCache[string](256, 5*time.Minute),
		sessionTTL: sessionTTL,
		durableTTL: durableTTL,
	}
}

// Register creates the account, provisions its profile document and opens a
// session with the requested persistence mode.
func (m *Manager) Register(ctx context.Context, email, secret, name string, mode PersistenceMode) (store.Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return store.Session{}, ErrMalformedIdentity
	}
	if len(secret) < minSecretLength {
		return store.Session{}, ErrWeakSecret
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return store.Session{}, fmt.Errorf("hash secret: %w", err)
	}

	u, err := m.users.CreateUser(ctx, email, string(hash))
	if errors.Is(err, store.ErrConflict) {
		return store.Session{}, ErrAlreadyRegistered
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("create user: %w", err)
	}

	// The profile is a secondary document; a failed write must not fail
	// registration, the display name just falls back to empty.
	if err := m.profiles.PutProfile(ctx, u.ID, store.Profile{Name: strings.TrimSpace(name), Email: email}); err != nil {
		slog.WarnContext(ctx, "Profile provisioning failed", "identity", u.ID, "error", err)
	}

	return m.openSession(ctx, u.ID, mode)
}

// SignIn authenticates and opens a session with the requested persistence
// mode.
func (m *Manager) SignIn(ctx context.Context, email, secret string, mode PersistenceMode) (store.Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return store.Session{}, ErrMalformedIdentity
	}

	u, err := m.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.Session{}, ErrUnknownIdentity
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.SecretHash), []byte(secret)) != nil {
		return store.Session{}, ErrBadCredential
	}

	return m.openSession(ctx, u.ID, mode)
}

// SignOut ends the session. Unknown tokens are not an error.
func (m *Manager) SignOut(ctx context.Context, token string) {
	if err := m.sessions.DeleteSession(ctx, token); err != nil {
		slog.WarnContext(ctx, "Session delete failed", "error", err)
	}
}

// Resolve maps a session token back to its identity. Expired or unknown
// sessions resolve to ErrUnknownIdentity so the caller renders the signed-out
// state.
func (m *Manager) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnknownIdentity
	}
	s, err := m.sessions.GetSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, ErrUnknownIdentity
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}
	if time.Now().After(s.ExpiresAt) {
		m.SignOut(ctx, token)
		return Identity{}, ErrUnknownIdentity
	}

	u, err := m.users.GetUser(ctx, s.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, ErrUnknownIdentity
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	return Identity{ID: u.ID, Email: u.Email}, nil
}

// DisplayName fetches the profile name for an identity. Every failure path
// falls back silently to the empty string; the greeting then shows the email.
func (m *Manager) DisplayName(ctx context.Context, identity string) string {
	if name, ok := m.names.Get(identity); ok {
		return name
	}
	p, err := m.profiles.GetProfile(ctx, identity)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.DebugContext(ctx, "Profile lookup failed", "identity", identity, "error", err)
		}
		return ""
	}
	m.names.Set(identity, p.Name)
	return p.Name
}

// InvalidateDisplayName drops a cached name, for when a profile changes.
func (m *Manager) InvalidateDisplayName(identity string) {
	m.names.Delete(identity)
}

func (m *Manager) openSession(ctx context.Context, userID string, mode PersistenceMode) (store.Session, error) {
	// Expired rows are otherwise only removed when their own token is
	// resolved, so each sign-in sweeps the table. Best effort.
	if _, err := m.sessions.PurgeExpiredSessions(ctx, time.Now()); err != nil {
		slog.WarnContext(ctx, "Expired session purge failed", "error", err)
	}

	token, err := newToken()
	if err != nil {
		return store.Session{}, fmt.Errorf("generate session token: %w", err)
	}

	ttl := m.sessionTTL
	if mode == Durable {
		ttl = m.durableTTL
	}
	s := store.Session{
		Token:     token,
		UserID:    userID,
		Durable:   mode == Durable,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := m.sessions.CreateSession(ctx, s); err != nil {
		return store.Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// TTL returns the session lifetime for a mode, for cookie expiry.
func (m *Manager) TTL(mode PersistenceMode) time.Duration {
	if mode == Durable {
		return m.durableTTL
	}
	return m.sessionTTL
}

// normalizeEmail makes the address a stable account key: the same inbox
// typed with different casing must map to the same account.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
