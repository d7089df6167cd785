package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"masraf/internal/core"
	"masraf/internal/query"
	"masraf/internal/store"
)

// SQLiteRepository implements every store port over one SQLite database.
type SQLiteRepository struct {
	db *sql.DB

	mu     sync.Mutex
	lastAt time.Time
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// assignedAt hands out write timestamps that never go backwards, so
// createdAt stays a usable sole sort key even when the wall clock stalls.
func (r *SQLiteRepository) assignedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := time.Now().UTC()
	if !t.After(r.lastAt) {
		t = r.lastAt.Add(time.Microsecond)
	}
	r.lastAt = t
	return t
}

// AddRecord implements store.RecordStore.
func (r *SQLiteRepository) AddRecord(ctx context.Context, rec core.Record) (string, error) {
	id := uuid.NewString()
	createdAt := r.assignedAt()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO records (id, owner, name, price, category, created_at, creation_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, rec.Owner, strings.TrimSpace(rec.Name), rec.Price, string(rec.Category),
		createdAt, rec.CreationDate,
	)
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}

	slog.InfoContext(ctx, "Record saved to SQLite",
		"id", id,
		"owner", rec.Owner,
		"name", rec.Name,
		"category", rec.Category)

	return id, nil
}

// UpdateRecord implements store.RecordStore. Only the mutable fields are
// touched; owner, id and created_at never appear in the SET clause.
func (r *SQLiteRepository) UpdateRecord(ctx context.Context, id string, upd core.RecordUpdate) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET name = ?, price = ?, category = ? WHERE id = ?`,
		strings.TrimSpace(upd.Name), upd.Price, string(upd.Category), id,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteRecord implements store.RecordStore.
func (r *SQLiteRepository) DeleteRecord(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	slog.InfoContext(ctx, "Record deleted", "id", id)
	return nil
}

// GetRecord implements store.RecordStore.
func (r *SQLiteRepository) GetRecord(ctx context.Context, id string) (core.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner, name, price, category, created_at, creation_date
		 FROM records WHERE id = ?`, id)
	return scanRecord(row)
}

// ListRecords implements store.RecordStore. Ordering is left to the caller;
// the live view re-sorts every snapshot anyway.
func (r *SQLiteRepository) ListRecords(ctx context.Context, p query.PredicateSet) ([]core.Record, error) {
	clause, args := p.SQL()
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner, name, price, category, created_at, creation_date
		 FROM records WHERE `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (core.Record, error) {
	var rec core.Record
	var cat string
	err := row.Scan(&rec.ID, &rec.Owner, &rec.Name, &rec.Price, &cat, &rec.CreatedAt, &rec.CreationDate)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, store.ErrNotFound
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Category = core.Category(cat)
	return rec, nil
}

// CreateUser implements store.UserStore.
func (r *SQLiteRepository) CreateUser(ctx context.Context, email, secretHash string) (store.User, error) {
	u := store.User{
		ID:         uuid.NewString(),
		Email:      email,
		SecretHash: secretHash,
		CreatedAt:  r.assignedAt(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, secret_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.SecretHash, u.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.User{}, store.ErrConflict
		}
		return store.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetUserByEmail implements store.UserStore.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, secret_hash, created_at FROM users WHERE email = ?`, email))
}

// GetUser implements store.UserStore.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (store.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, secret_hash, created_at FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Email, &u.SecretHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// PutProfile implements store.ProfileStore.
func (r *SQLiteRepository) PutProfile(ctx context.Context, identity string, p store.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (identity, name, email) VALUES (?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET name = excluded.name, email = excluded.email`,
		identity, p.Name, p.Email,
	)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

// GetProfile implements store.ProfileStore.
func (r *SQLiteRepository) GetProfile(ctx context.Context, identity string) (store.Profile, error) {
	var p store.Profile
	err := r.db.QueryRowContext(ctx,
		`SELECT name, email FROM profiles WHERE identity = ?`, identity).
		Scan(&p.Name, &p.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Profile{}, store.ErrNotFound
	}
	if err != nil {
		return store.Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	return p, nil
}

// CreateSession implements store.SessionStore.
func (r *SQLiteRepository) CreateSession(ctx context.Context, s store.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, durable, expires_at) VALUES (?, ?, ?, ?)`,
		s.Token, s.UserID, s.Durable, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession implements store.SessionStore.
func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (store.Session, error) {
	var s store.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, durable, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.UserID, &s.Durable, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Session{}, store.ErrNotFound
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

// DeleteSession implements store.SessionStore.
func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions implements store.SessionStore.
func (r *SQLiteRepository) PurgeExpiredSessions(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(n), nil
}
