package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"masraf/internal/core"
	"masraf/internal/query"
	"masraf/internal/store"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "masraf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_RecordCRUD(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	id, err := repo.AddRecord(ctx, core.Record{
		Owner:        "u1",
		Name:         "Coffee",
		Price:        "3.50",
		Category:     core.CategoryFood,
		CreationDate: "12.03.2024",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := repo.GetRecord(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "u1", rec.Owner)
	require.Equal(t, "Coffee", rec.Name)
	require.Equal(t, "3.50", rec.Price)
	require.Equal(t, core.CategoryFood, rec.Category)
	require.False(t, rec.CreatedAt.IsZero(), "store must assign created_at")
	require.Equal(t, "12.03.2024", rec.CreationDate)

	err = repo.UpdateRecord(ctx, id, core.RecordUpdate{Name: "  Tea  ", Price: "2.00", Category: core.CategoryOther})
	require.NoError(t, err)
	rec, err = repo.GetRecord(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Tea", rec.Name, "names are stored trimmed")
	require.Equal(t, "2.00", rec.Price)
	require.Equal(t, core.CategoryOther, rec.Category)
	require.Equal(t, "u1", rec.Owner, "owner is immutable")

	require.NoError(t, repo.DeleteRecord(ctx, id))
	_, err = repo.GetRecord(ctx, id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, repo.DeleteRecord(ctx, id), store.ErrNotFound)
	require.ErrorIs(t, repo.UpdateRecord(ctx, id, core.RecordUpdate{Name: "x", Price: "1", Category: core.CategoryOther}), store.ErrNotFound)
}

func TestSQLiteRepository_ListRecords(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	add := func(owner string, cat core.Category) {
		t.Helper()
		_, err := repo.AddRecord(ctx, core.Record{Owner: owner, Name: "n", Price: "1", Category: cat})
		require.NoError(t, err)
	}
	add("u1", core.CategoryFood)
	add("u1", core.CategoryBill)
	add("u2", core.CategoryFood)

	recs, err := repo.ListRecords(ctx, query.Build("u1", query.Filter{}))
	require.NoError(t, err)
	require.Len(t, recs, 2, "a session only observes its own records")

	recs, err = repo.ListRecords(ctx, query.Build("u1", query.Filter{Category: core.CategoryBill}))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, core.CategoryBill, recs[0].Category)

	// Records created now fall inside the current month range.
	rec0 := recs[0]
	recs, err = repo.ListRecords(ctx, query.Build("u1", query.Filter{
		Month: int(rec0.CreatedAt.Month()),
		Year:  rec0.CreatedAt.Year(),
	}))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// A month/year with no matches produces an empty snapshot.
	recs, err = repo.ListRecords(ctx, query.Build("u1", query.Filter{Month: 3, Year: 1999}))
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestSQLiteRepository_CreatedAtNonDecreasing(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 10; i++ {
		id, err := repo.AddRecord(ctx, core.Record{Owner: "u1", Name: "n", Price: "1", Category: core.CategoryOther})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var prev core.Record
	for i, id := range ids {
		rec, err := repo.GetRecord(ctx, id)
		require.NoError(t, err)
		if i > 0 {
			require.True(t, rec.CreatedAt.After(prev.CreatedAt),
				"created_at must not decrease in assignment order")
		}
		prev = rec
	}
}

func TestSQLiteRepository_UsersAndSessions(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "ada@example.com", "hash")
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, "ada@example.com", "other")
	require.ErrorIs(t, err, store.ErrConflict)

	got, err := repo.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, repo.PutProfile(ctx, u.ID, store.Profile{Name: "Ada", Email: u.Email}))
	// Upsert replaces the name.
	require.NoError(t, repo.PutProfile(ctx, u.ID, store.Profile{Name: "Ada L.", Email: u.Email}))
	p, err := repo.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada L.", p.Name)

	sess := store.Session{Token: "tok", UserID: u.ID, Durable: true, ExpiresAt: u.CreatedAt.AddDate(0, 0, 30)}
	require.NoError(t, repo.CreateSession(ctx, sess))
	gotSess, err := repo.GetSession(ctx, "tok")
	require.NoError(t, err)
	require.True(t, gotSess.Durable)
	require.NoError(t, repo.DeleteSession(ctx, "tok"))
	_, err = repo.GetSession(ctx, "tok")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteRepository_PurgeExpiredSessions(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "ada@example.com", "hash")
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, repo.CreateSession(ctx, store.Session{Token: "stale", UserID: u.ID, ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.CreateSession(ctx, store.Session{Token: "live", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}))

	n, err := repo.PurgeExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = repo.GetSession(ctx, "stale")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.GetSession(ctx, "live")
	require.NoError(t, err)
}
